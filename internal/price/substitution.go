package price

import (
	"strings"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

// substitution redirects lookups for a chain the price service does not
// cover onto a chain it does.
type substitution struct {
	target string
	// tokens maps addresses on the source chain to the target chain. Tokens
	// absent from the map are priced on the source chain unchanged.
	tokens map[string]string
}

var substitutions = map[string]substitution{
	domain.ChainNova: {
		target: domain.ChainArbitrum,
		tokens: map[string]string{
			domain.NativeToken: domain.NativeToken,
			// WETH
			"0x765277eebeca2e31912c9946eae1021199b39c61": "0x82af49447d8a07e3bd95bd0d56f35241523fbab1",
		},
	},
}

// ValueTarget returns the (chain, token) pair a transferred token is priced
// as.
func ValueTarget(chain, token string) (string, string) {
	token = strings.ToLower(token)
	sub, ok := substitutions[chain]
	if !ok {
		return chain, token
	}
	if mapped, ok := sub.tokens[token]; ok {
		return sub.target, mapped
	}
	return chain, token
}

// FeeTarget returns the (chain, token) pair a transaction fee is priced as:
// the native token, on the substituted chain if there is one.
func FeeTarget(chain string) (string, string) {
	if sub, ok := substitutions[chain]; ok {
		return sub.target, domain.NativeToken
	}
	return chain, domain.NativeToken
}
