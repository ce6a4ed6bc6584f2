package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtlprog/holdings/internal/price"
)

type mockQuoteRefresher struct {
	callCount atomic.Int32
	err       error
}

func (m *mockQuoteRefresher) RefreshQuotes(_ context.Context) ([]price.Outcome, error) {
	m.callCount.Add(1)
	return []price.Outcome{{AssetID: "bitcoin"}, {AssetID: "dogecoin", Err: errors.New("429")}}, m.err
}

func TestQuoteWorkerRefreshesOnStartup(t *testing.T) {
	mock := &mockQuoteRefresher{}
	w := NewQuoteWorker(mock, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for mock.callCount.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := mock.callCount.Load(); got != 1 {
		t.Errorf("call count = %d, want the single startup refresh before the first tick", got)
	}
}

func TestQuoteWorkerRefreshesOnEachTick(t *testing.T) {
	mock := &mockQuoteRefresher{}
	w := NewQuoteWorker(mock, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if got := mock.callCount.Load(); got < 3 {
		t.Errorf("call count = %d, want startup plus periodic refreshes", got)
	}
}

func TestQuoteWorkerKeepsRunningAfterError(t *testing.T) {
	mock := &mockQuoteRefresher{err: errors.New("saving price history: disk full")}
	w := NewQuoteWorker(mock, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := mock.callCount.Load(); got < 2 {
		t.Errorf("call count = %d, want retries after a failure", got)
	}
}
