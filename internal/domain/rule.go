package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RuleSet is the ruleset name under which cluster rules are stored.
const RuleSet = "inout_flow"

// ClusterMember is one watched address and its display tag.
type ClusterMember struct {
	Address string `json:"address"`
	Tag     string `json:"tag"`
}

// Rule defines a cluster of watched addresses and the minimum USD value a
// transfer must carry to alert.
type Rule struct {
	ID        string
	Chain     string
	Members   []ClusterMember
	Threshold decimal.Decimal
}

type ruleDetail struct {
	Addresses []ClusterMember `json:"addresses"`
	Threshold decimal.Decimal `json:"threshold"`
}

// ParseRule decodes a rule's JSON detail column. Addresses are normalized to
// lowercase hex; an address that is not a 20-byte hex string yields
// ErrInvalidRule.
func ParseRule(id, chain string, detail []byte) (Rule, error) {
	var d ruleDetail
	if err := json.Unmarshal(detail, &d); err != nil {
		return Rule{}, fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, id, err)
	}
	members := make([]ClusterMember, 0, len(d.Addresses))
	for _, m := range d.Addresses {
		addr, err := NormalizeAddress(m.Address)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, id, err)
		}
		members = append(members, ClusterMember{Address: addr, Tag: m.Tag})
	}
	return Rule{ID: id, Chain: chain, Members: members, Threshold: d.Threshold}, nil
}

// NormalizeAddress validates a hex address and returns it lowercased with the
// 0x prefix.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("not a hex address: %q", s)
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), nil
}

// Cluster maps member address to tag. Later duplicates override earlier ones.
type Cluster map[string]string

// Cluster builds the membership index of the rule.
func (r Rule) Cluster() Cluster {
	c := make(Cluster, len(r.Members))
	for _, m := range r.Members {
		c[m.Address] = m.Tag
	}
	return c
}

// Contains reports whether addr is a member.
func (c Cluster) Contains(addr string) bool {
	_, ok := c[addr]
	return ok
}

// Tag returns the member's tag, or nil when addr is not a member.
func (c Cluster) Tag(addr string) *string {
	tag, ok := c[addr]
	if !ok {
		return nil
	}
	return &tag
}

// Addresses returns the member addresses in sorted order.
func (c Cluster) Addresses() []string {
	out := make([]string, 0, len(c))
	for a := range c {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
