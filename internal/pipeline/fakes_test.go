package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
	usdt  = "0xdac17f958d2ee523a2206206994597c13d831ec7"
)

var windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReader struct {
	mu        sync.Mutex
	transfers []domain.RawTransfer
	txs       map[string]domain.TxContext
	rangeErr  error
	filters   []domain.TransferFilter
	txReads   int
}

func (f *fakeReader) FetchTransfers(_ context.Context, _ domain.Window, flt domain.TransferFilter) ([]domain.RawTransfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, flt)
	out := make([]domain.RawTransfer, len(f.transfers))
	copy(out, f.transfers)
	return out, nil
}

func (f *fakeReader) FetchTxContexts(context.Context, domain.Window) (map[string]domain.TxContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txReads++
	return f.txs, nil
}

func (f *fakeReader) BlockTimeRange(context.Context, string, int64, int64) (time.Time, time.Time, error) {
	if f.rangeErr != nil {
		return time.Time{}, time.Time{}, f.rangeErr
	}
	return windowStart, windowStart.Add(time.Minute), nil
}

func (f *fakeReader) CurrentBlock(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeReader) FirstBlockOfDay(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

type fakeRules []domain.Rule

func (f fakeRules) Rules(context.Context, string) ([]domain.Rule, error) { return f, nil }

type fakeActions struct{}

func (fakeActions) Action(_ context.Context, selector string) (string, error) {
	if selector == "" || selector == "0x" {
		return "Transfer", nil
	}
	return selector, nil
}

type fakeLabels struct {
	mu     sync.Mutex
	labels map[string]string
	calls  int
}

func (f *fakeLabels) Label(_ context.Context, _, address string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	l, ok := f.labels[address]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

type fakePricer struct {
	prices map[string]decimal.Decimal
	fee    *decimal.Decimal
	err    error
}

func (f *fakePricer) ValuePrice(_ context.Context, _, token string, _ time.Time) (*decimal.Decimal, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.prices[token]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePricer) FeePrice(context.Context, string, time.Time) (*decimal.Decimal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fee, nil
}

type fakeLocks struct {
	held     bool
	acquired []string
	released int
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() { f.released++ }, nil
}

type fakeArchiver struct {
	mu      sync.Mutex
	batches map[string]int
	err     error
}

func (f *fakeArchiver) ArchiveAlerts(_ context.Context, _ domain.Window, ruleID string, records []domain.AlertRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches == nil {
		f.batches = map[string]int{}
	}
	f.batches[ruleID] += len(records)
	return f.err
}

func transfer(hash string, txpos int64, from, to, token string, amount int64) domain.RawTransfer {
	return domain.RawTransfer{
		BlockTimestamp: windowStart.Add(12 * time.Second),
		BlockNumber:    100,
		TxHash:         hash,
		TxPos:          txpos,
		TraceAddress:   "",
		LogPos:         txpos,
		From:           from,
		To:             to,
		TokenName:      "USDT",
		TokenAddress:   token,
		Value:          decimal.NewFromInt(amount * 1_000_000),
		ValueAmount:    decimal.NewFromInt(amount),
		Status:         1,
	}
}

func txContext(hash, from, to string) domain.TxContext {
	fee := decimal.RequireFromString("420000000000000")
	amount := decimal.RequireFromString("0.00042")
	return domain.TxContext{
		TxHash:       hash,
		From:         from,
		To:           to,
		Status:       1,
		Selector:     "0xa9059cbb",
		FeeTokenName: "ETH",
		Fee:          &fee,
		FeeAmount:    &amount,
	}
}

func rule(id string, threshold int64, members ...domain.ClusterMember) domain.Rule {
	return domain.Rule{ID: id, Chain: "ethereum", Members: members, Threshold: decimal.NewFromInt(threshold)}
}
