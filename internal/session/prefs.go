package session

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/state"
)

// Prefs are the persisted view preferences.
type Prefs struct {
	GroupMode     domain.GroupMode `json:"groupMode"`
	CalendarYear  int              `json:"calendarYear"`
	CalendarMonth int              `json:"calendarMonth"`
	// OpenGroups is keyed by "date|group|mode".
	OpenGroups map[string]bool `json:"openGroups"`
}

func defaultPrefs(today domain.Date) Prefs {
	return Prefs{
		GroupMode:     domain.GroupByHolder,
		CalendarYear:  today.Year(),
		CalendarMonth: int(today.Month()),
		OpenGroups:    map[string]bool{},
	}
}

func (p Prefs) normalized(today domain.Date) Prefs {
	if mode, err := domain.ParseGroupMode(string(p.GroupMode)); err == nil {
		p.GroupMode = mode
	} else {
		p.GroupMode = domain.GroupByHolder
	}
	if p.CalendarYear <= 0 || p.CalendarMonth < 1 || p.CalendarMonth > 12 {
		p.CalendarYear, p.CalendarMonth = today.Year(), int(today.Month())
	}
	if p.OpenGroups == nil {
		p.OpenGroups = map[string]bool{}
	}
	return p
}

// Calendar returns the month shown by the calendar.
func (p Prefs) Calendar() domain.MonthKey {
	return domain.MonthKey{Year: p.CalendarYear, Month: time.Month(p.CalendarMonth)}
}

// OpenGroupKey builds the key of the open-group map.
func OpenGroupKey(date domain.Date, group string, mode domain.GroupMode) string {
	return fmt.Sprintf("%s|%s|%s", date, group, mode)
}

// Prefs returns a copy of the current preferences.
func (s *Session) Prefs() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.prefs
	p.OpenGroups = maps.Clone(s.prefs.OpenGroups)
	return p
}

func (s *Session) updatePrefs(ctx context.Context, fn func(*Prefs)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.prefs)
	if err := s.store.Write(ctx, state.KeyPrefs, s.prefs); err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}

// SetGroupMode persists the preferred group mode.
func (s *Session) SetGroupMode(ctx context.Context, mode domain.GroupMode) error {
	return s.updatePrefs(ctx, func(p *Prefs) { p.GroupMode = mode })
}

// SetGroupOpen remembers whether a group of the composition view is expanded.
func (s *Session) SetGroupOpen(ctx context.Context, date domain.Date, group string, mode domain.GroupMode, open bool) error {
	key := OpenGroupKey(date, group, mode)
	return s.updatePrefs(ctx, func(p *Prefs) {
		if open {
			p.OpenGroups[key] = true
		} else {
			delete(p.OpenGroups, key)
		}
	})
}

// IsGroupOpen reports whether a group was left expanded.
func (s *Session) IsGroupOpen(date domain.Date, group string, mode domain.GroupMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.OpenGroups[OpenGroupKey(date, group, mode)]
}

// CalendarView is the calendar month with one cell per day.
type CalendarView struct {
	Month string           `json:"month"`
	Cells []domain.DayCell `json:"cells"`
}

// Calendar returns the current calendar month from cached prices.
func (s *Session) Calendar() CalendarView {
	month := s.Prefs().Calendar()
	return CalendarView{Month: month.String(), Cells: s.Month(month)}
}

// CalendarPrev moves the calendar one month back.
func (s *Session) CalendarPrev(ctx context.Context) (CalendarView, error) {
	return s.navigate(ctx, s.Prefs().Calendar().Shift(-1))
}

// CalendarNext moves the calendar one month forward.
func (s *Session) CalendarNext(ctx context.Context) (CalendarView, error) {
	return s.navigate(ctx, s.Prefs().Calendar().Shift(1))
}

// CalendarToday moves the calendar to the current month.
func (s *Session) CalendarToday(ctx context.Context) (CalendarView, error) {
	return s.navigate(ctx, domain.MonthOf(s.Today()))
}

// CalendarEarliest moves the calendar to the month of the oldest entry, or today without entries.
func (s *Session) CalendarEarliest(ctx context.Context) (CalendarView, error) {
	earliest, ok := s.ledger.EarliestDate()
	if !ok {
		earliest = s.Today()
	}
	return s.navigate(ctx, domain.MonthOf(earliest))
}

// CalendarGoTo moves the calendar to month.
func (s *Session) CalendarGoTo(ctx context.Context, month domain.MonthKey) (CalendarView, error) {
	return s.navigate(ctx, month)
}

func (s *Session) navigate(ctx context.Context, month domain.MonthKey) (CalendarView, error) {
	if err := s.updatePrefs(ctx, func(p *Prefs) {
		p.CalendarYear, p.CalendarMonth = month.Year, int(month.Month)
	}); err != nil {
		return CalendarView{}, err
	}
	if _, err := s.PrefetchMonth(ctx, month); err != nil {
		return CalendarView{}, err
	}
	return CalendarView{Month: month.String(), Cells: s.Month(month)}, nil
}
