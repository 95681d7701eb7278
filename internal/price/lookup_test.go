package price

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

type fakeSource struct {
	mu     sync.Mutex
	calls  []string
	prices map[string]decimal.Decimal
	err    error
}

func (f *fakeSource) Price(_ context.Context, chain, token string, _ time.Time) (*decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chain+"/"+token)
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.prices[chain+"/"+token]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakeShared struct {
	mu   sync.Mutex
	data map[string]*decimal.Decimal
	sets int
}

func (f *fakeShared) GetPrice(_ context.Context, chain, token string, at time.Time) (*decimal.Decimal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.data[chain+"/"+token+"/"+at.Format(time.RFC3339)]
	return p, ok, nil
}

func (f *fakeShared) SetPrice(_ context.Context, chain, token string, at time.Time, p *decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.data[chain+"/"+token+"/"+at.Format(time.RFC3339)] = p
	return nil
}

type countingThrottle struct{ n atomic.Int64 }

func (c *countingThrottle) Wait(context.Context, string) error {
	c.n.Add(1)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLookupSubstitutesNova(t *testing.T) {
	src := &fakeSource{prices: map[string]decimal.Decimal{
		"arbitrum/0x82af49447d8a07e3bd95bd0d56f35241523fbab1": decimal.NewFromInt(2300),
		"arbitrum/" + domain.NativeToken:                      decimal.NewFromInt(2301),
	}}
	l := NewLookup(src, discard())
	at := time.Date(2024, 1, 1, 0, 0, 12, 0, time.UTC)

	p, err := l.ValuePrice(context.Background(), "nova", "0x765277EEBECA2E31912C9946EAE1021199B39C61", at)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || !p.Equal(decimal.NewFromInt(2300)) {
		t.Fatalf("value price = %v", p)
	}
	p, err = l.FeePrice(context.Background(), "nova", at)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || !p.Equal(decimal.NewFromInt(2301)) {
		t.Fatalf("fee price = %v", p)
	}

	// an unmapped nova token stays on nova
	if p, _ := l.ValuePrice(context.Background(), "nova", "0xdead", at); p != nil {
		t.Fatalf("unmapped price = %v", p)
	}
	if last := src.calls[len(src.calls)-1]; last != "nova/0xdead" {
		t.Fatalf("last call = %s", last)
	}
}

func TestLookupMemoizesPerMinute(t *testing.T) {
	src := &fakeSource{prices: map[string]decimal.Decimal{"ethereum/0xa": decimal.NewFromInt(1)}}
	throttle := &countingThrottle{}
	l := NewLookup(src, discard(), WithThrottle(throttle))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, s := range []int{1, 12, 59} {
		if _, err := l.Price(ctx, "ethereum", "0xa", base.Add(time.Duration(s)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	if len(src.calls) != 1 {
		t.Fatalf("source calls = %d, want 1", len(src.calls))
	}
	if _, err := l.Price(ctx, "ethereum", "0xa", base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if len(src.calls) != 2 || throttle.n.Load() != 2 {
		t.Fatalf("source calls = %d throttle = %d", len(src.calls), throttle.n.Load())
	}
}

func TestLookupSharedCache(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cached := decimal.RequireFromString("0.5")
	shared := &fakeShared{data: map[string]*decimal.Decimal{
		"ethereum/0xa/" + at.Format(time.RFC3339): &cached,
		"ethereum/0xb/" + at.Format(time.RFC3339): nil,
	}}
	src := &fakeSource{prices: map[string]decimal.Decimal{"ethereum/0xc": decimal.NewFromInt(3)}}
	l := NewLookup(src, discard(), WithSharedCache(shared))

	if p, _ := l.Price(ctx, "ethereum", "0xa", at); p == nil || !p.Equal(cached) {
		t.Fatalf("0xa = %v", p)
	}
	if p, _ := l.Price(ctx, "ethereum", "0xb", at); p != nil {
		t.Fatalf("cached no-price = %v", p)
	}
	if len(src.calls) != 0 {
		t.Fatalf("source calls = %v", src.calls)
	}
	if p, _ := l.Price(ctx, "ethereum", "0xc", at); p == nil || !p.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("0xc = %v", p)
	}
	if shared.sets != 1 {
		t.Fatalf("shared sets = %d", shared.sets)
	}
}

func TestLookupErrorsAreNotCached(t *testing.T) {
	src := &fakeSource{err: errors.New("unavailable")}
	l := NewLookup(src, discard())
	at := time.Now()
	if _, err := l.Price(context.Background(), "ethereum", "0xa", at); err == nil {
		t.Fatal("expected error")
	}
	src.err = nil
	src.prices = map[string]decimal.Decimal{"ethereum/0xa": decimal.NewFromInt(1)}
	p, err := l.Price(context.Background(), "ethereum", "0xa", at)
	if err != nil || p == nil {
		t.Fatalf("retry = %v, %v", p, err)
	}
}

func TestTargets(t *testing.T) {
	tests := []struct {
		chain, token         string
		wantChain, wantToken string
	}{
		{"ethereum", "0xAbC", "ethereum", "0xabc"},
		{"nova", domain.NativeToken, "arbitrum", domain.NativeToken},
		{"nova", "0x765277eebeca2e31912c9946eae1021199b39c61", "arbitrum", "0x82af49447d8a07e3bd95bd0d56f35241523fbab1"},
		{"nova", "0x1111111111111111111111111111111111111111", "nova", "0x1111111111111111111111111111111111111111"},
	}
	for _, tt := range tests {
		c, tok := ValueTarget(tt.chain, tt.token)
		if c != tt.wantChain || tok != tt.wantToken {
			t.Errorf("ValueTarget(%s, %s) = %s, %s", tt.chain, tt.token, c, tok)
		}
	}
	if c, tok := FeeTarget("nova"); c != "arbitrum" || tok != domain.NativeToken {
		t.Errorf("FeeTarget(nova) = %s, %s", c, tok)
	}
	if c, _ := FeeTarget("bsc"); c != "bsc" {
		t.Errorf("FeeTarget(bsc) = %s", c)
	}
}
