package domain

import "strings"

// Chain names with special handling.
const (
	ChainEthereum = "ethereum"
	ChainArbitrum = "arbitrum"
	ChainNova     = "nova"
)

var nativeSymbols = map[string]string{
	"ethereum":   "ETH",
	"bsc":        "BNB",
	"polygon":    "MATIC",
	"bor":        "MATIC",
	"avalanche":  "AVAX",
	"arbitrum":   "ETH",
	"nova":       "ETH",
	"optimistic": "ETH",
	"zksyncera":  "ETH",
	"aurora":     "ETH",
	"fantom":     "FTM",
	"cronos":     "CRO",
	"heco":       "HT",
	"moonriver":  "MOVR",
	"moonbeam":   "GLMR",
	"celo":       "CELO",
}

var explorers = map[string]string{
	"ethereum":   "https://etherscan.io",
	"bsc":        "https://bscscan.com",
	"avalanche":  "https://snowtrace.io",
	"heco":       "https://hecoinfo.com",
	"arbitrum":   "https://arbiscan.io",
	"nova":       "https://nova.arbiscan.io",
	"fantom":     "https://ftmscan.com",
	"cronos":     "https://cronoscan.com",
	"optimistic": "https://optimistic.etherscan.io",
	"bor":        "https://polygonscan.com",
	"polygon":    "https://polygonscan.com",
	"moonriver":  "https://moonriver.moonscan.io",
	"moonbeam":   "https://moonbeam.moonscan.io",
	"aurora":     "https://aurorascan.dev",
	"celo":       "https://celoscan.io",
}

// NativeSymbol returns the native currency symbol of chain. Unknown chains
// fall back to the upper-cased chain name.
func NativeSymbol(chain string) string {
	if s, ok := nativeSymbols[chain]; ok {
		return s
	}
	return strings.ToUpper(chain)
}

// TxLink returns the block-explorer URL of a transaction, or "" if the chain
// has no known explorer.
func TxLink(chain, txHash string) string {
	base, ok := explorers[chain]
	if !ok {
		return ""
	}
	return base + "/tx/" + txHash
}
