package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

// TransferActionName is the action reported for calls without a selector.
const TransferActionName = "Transfer"

// Size is the TTL and capacity of one lookup cache.
type Size struct {
	TTL      time.Duration
	Capacity int
}

// Sizes configures the four lookups.
type Sizes struct {
	CurrentBlock Size
	Rules        Size
	Labels       Size
	Signatures   Size
}

// DefaultSizes returns the standard TTLs and capacities.
func DefaultSizes() Sizes {
	return Sizes{
		CurrentBlock: Size{TTL: 10 * time.Second, Capacity: 16},
		Rules:        Size{TTL: 30 * time.Minute, Capacity: 16},
		Labels:       Size{TTL: 60 * time.Minute, Capacity: 1024},
		Signatures:   Size{TTL: 30 * time.Minute, Capacity: 1024},
	}
}

// Lookups bundles the process-wide current-block, rule-catalog,
// address-label and function-signature caches in front of their stores.
type Lookups struct {
	blocks domain.TransferReader
	rules  domain.RuleReader
	oracle domain.OracleReader

	currentBlock *TTL[int64]
	ruleCatalog  *TTL[[]domain.Rule]
	labels       *TTL[*string]
	signatures   *TTL[string]
}

// NewLookups wires the caches to their sources of truth.
func NewLookups(blocks domain.TransferReader, rules domain.RuleReader, oracle domain.OracleReader, sizes Sizes) *Lookups {
	return &Lookups{
		blocks:       blocks,
		rules:        rules,
		oracle:       oracle,
		currentBlock: NewTTL[int64](sizes.CurrentBlock.TTL, sizes.CurrentBlock.Capacity),
		ruleCatalog:  NewTTL[[]domain.Rule](sizes.Rules.TTL, sizes.Rules.Capacity),
		labels:       NewTTL[*string](sizes.Labels.TTL, sizes.Labels.Capacity),
		signatures:   NewTTL[string](sizes.Signatures.TTL, sizes.Signatures.Capacity),
	}
}

// CurrentBlock returns the latest block number of chain.
func (l *Lookups) CurrentBlock(ctx context.Context, chain string) (int64, error) {
	return l.currentBlock.Get(ctx, chain, func(ctx context.Context) (int64, error) {
		return l.blocks.CurrentBlock(ctx, chain)
	})
}

// Rules returns the active cluster rules of chain.
func (l *Lookups) Rules(ctx context.Context, chain string) ([]domain.Rule, error) {
	return l.ruleCatalog.Get(ctx, chain, func(ctx context.Context) ([]domain.Rule, error) {
		return l.rules.ListRules(ctx, chain)
	})
}

// Label returns the ';'-joined labels of address, or nil when it has none.
// The absence of a label is cached like any other result.
func (l *Lookups) Label(ctx context.Context, chain, address string) (*string, error) {
	return l.labels.Get(ctx, chain+":"+address, func(ctx context.Context) (*string, error) {
		label, err := l.oracle.AddressLabel(ctx, chain, address)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("cache: load label %s: %w", address, err)
		}
		return &label, nil
	})
}

// Action resolves a 4-byte selector to a function name. Empty and "0x"
// selectors are plain transfers; unknown selectors are returned unchanged.
func (l *Lookups) Action(ctx context.Context, selector string) (string, error) {
	if selector == "" || selector == "0x" {
		return TransferActionName, nil
	}
	return l.signatures.Get(ctx, selector, func(ctx context.Context) (string, error) {
		name, err := l.oracle.FunctionName(ctx, selector)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && name == "") {
			return selector, nil
		}
		if err != nil {
			return "", fmt.Errorf("cache: load signature %s: %w", selector, err)
		}
		return name, nil
	})
}

// InvalidateRules forces the next Rules call to reload from the store.
func (l *Lookups) InvalidateRules() {
	l.ruleCatalog.Purge()
}
