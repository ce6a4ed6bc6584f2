package domain

import "strings"

// AssetKindType classifies how an asset is priced.
type AssetKindType string

const (
	// AssetKindStablecoin assets have a fixed unit price of 1 and are never fetched.
	AssetKindStablecoin AssetKindType = "stablecoin"
	// AssetKindPriced assets are priced through the external providers.
	AssetKindPriced AssetKindType = "priced"
	// AssetKindUnknown is an empty or missing asset id.
	AssetKindUnknown AssetKindType = "unknown"
)

// AssetKind is the pricing classification of an asset id.
type AssetKind struct {
	Type AssetKindType
	ID   string
}

// stablecoinIDs are the ledger asset ids with a hard-coded unit price.
var stablecoinIDs = map[string]bool{
	"usdt":  true,
	"other": true,
}

// ClassifyAsset returns the pricing kind of an asset id.
func ClassifyAsset(assetID string) AssetKind {
	id := NormalizeAssetID(assetID)
	switch {
	case id == "":
		return AssetKind{Type: AssetKindUnknown}
	case stablecoinIDs[id]:
		return AssetKind{Type: AssetKindStablecoin, ID: id}
	default:
		return AssetKind{Type: AssetKindPriced, ID: id}
	}
}

// IsStablecoin reports whether the asset has a fixed unit price.
func IsStablecoin(assetID string) bool {
	return ClassifyAsset(assetID).Type == AssetKindStablecoin
}

// IsPriced reports whether the asset needs an external price.
func IsPriced(assetID string) bool {
	return ClassifyAsset(assetID).Type == AssetKindPriced
}

// NormalizeAssetID returns the canonical lower-case form of an asset id.
func NormalizeAssetID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// TickerMapping maps display tickers to CoinGecko ids.
var TickerMapping = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"USDT":  "tether",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"TRX":   "tron",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"TON":   "the-open-network",
	"ARB":   "arbitrum",
	"OP":    "optimism",
	"LTC":   "litecoin",
	"BCH":   "bitcoin-cash",
	"ATOM":  "cosmos",
	"NEAR":  "near",
	"XMR":   "monero",
	"FIL":   "filecoin",
	"APT":   "aptos",
	"SUI":   "sui",
	"INJ":   "injective-protocol",
	"RUNE":  "thorchain",
	"MKR":   "maker",
	"AAVE":  "aave",
	"PEPE":  "pepe",
	"SHIB":  "shiba-inu",
	"UNI":   "uniswap",
	"ETC":   "ethereum-classic",
}

// SymbolForID returns the display ticker for an asset id, falling back to the
// upper-cased id when the id is not a known CoinGecko id.
func SymbolForID(assetID string) string {
	id := NormalizeAssetID(assetID)
	for sym, cgID := range TickerMapping {
		if cgID == id {
			return sym
		}
	}
	if id == "usdt" {
		return "USDT"
	}
	return strings.ToUpper(id)
}

// DisplayTicker returns the upper-cased ticker, deriving it from the asset id when empty.
func DisplayTicker(ticker, assetID string) string {
	if t := strings.TrimSpace(ticker); t != "" {
		return strings.ToUpper(t)
	}
	return SymbolForID(assetID)
}

// NormalizeAssetInput resolves free-text asset input into an asset id and ticker.
// chosenID and chosenSymbol come from a selected search candidate and win over the raw text.
func NormalizeAssetInput(raw, chosenID, chosenSymbol string) (assetID, ticker string) {
	manual := strings.TrimSpace(raw)
	sym := strings.ToUpper(manual)

	assetID = chosenID
	ticker = chosenSymbol
	if ticker == "" {
		ticker = sym
	}
	if ticker == "" {
		ticker = strings.ToUpper(assetID)
	}
	if assetID == "" {
		if mapped, ok := TickerMapping[sym]; ok && sym != "" {
			assetID = mapped
		} else {
			assetID = strings.ToLower(manual)
		}
	}
	if ticker == "" {
		ticker = strings.ToUpper(assetID)
	}
	return NormalizeAssetID(assetID), strings.ToUpper(ticker)
}
