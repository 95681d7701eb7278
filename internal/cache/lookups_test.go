package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

type fakeOracle struct {
	mu         sync.Mutex
	labels     map[string]string
	signatures map[string]string
	labelCalls int
	sigCalls   int
	err        error
}

func (f *fakeOracle) AddressLabel(_ context.Context, _, address string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labelCalls++
	if f.err != nil {
		return "", f.err
	}
	l, ok := f.labels[address]
	if !ok {
		return "", domain.ErrNotFound
	}
	return l, nil
}

func (f *fakeOracle) FunctionName(_ context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigCalls++
	n, ok := f.signatures[selector]
	if !ok {
		return "", domain.ErrNotFound
	}
	return n, nil
}

type fakeRules struct {
	calls int
	rules []domain.Rule
}

func (f *fakeRules) ListRules(context.Context, string) ([]domain.Rule, error) {
	f.calls++
	return f.rules, nil
}

type fakeBlocks struct {
	domain.TransferReader
	current int64
	calls   int
}

func (f *fakeBlocks) CurrentBlock(context.Context, string) (int64, error) {
	f.calls++
	return f.current, nil
}

func newTestLookups(o *fakeOracle, r *fakeRules, b *fakeBlocks) *Lookups {
	return NewLookups(b, r, o, DefaultSizes())
}

func TestActionResolution(t *testing.T) {
	o := &fakeOracle{signatures: map[string]string{"0xa9059cbb": "transfer"}}
	l := newTestLookups(o, &fakeRules{}, &fakeBlocks{})
	ctx := context.Background()

	for _, sel := range []string{"", "0x"} {
		got, err := l.Action(ctx, sel)
		if err != nil || got != TransferActionName {
			t.Fatalf("Action(%q) = %q, %v", sel, got, err)
		}
	}
	if o.sigCalls != 0 {
		t.Fatal("empty selector must not hit the oracle")
	}

	if got, _ := l.Action(ctx, "0xa9059cbb"); got != "transfer" {
		t.Fatalf("known selector = %q", got)
	}
	for i := 0; i < 2; i++ {
		got, err := l.Action(ctx, "0xdeadbeef")
		if err != nil || got != "0xdeadbeef" {
			t.Fatalf("unknown selector = %q, %v", got, err)
		}
	}
	if o.sigCalls != 2 {
		t.Fatalf("oracle calls = %d, want 2 (miss outcome cached)", o.sigCalls)
	}
}

func TestLabelCachesAbsence(t *testing.T) {
	o := &fakeOracle{labels: map[string]string{"0xa": "Binance;CEX"}}
	l := newTestLookups(o, &fakeRules{}, &fakeBlocks{})
	ctx := context.Background()

	got, err := l.Label(ctx, "ethereum", "0xa")
	if err != nil || got == nil || *got != "Binance;CEX" {
		t.Fatalf("label = %v, %v", got, err)
	}
	for i := 0; i < 3; i++ {
		got, err := l.Label(ctx, "ethereum", "0xb")
		if err != nil || got != nil {
			t.Fatalf("unlabeled = %v, %v", got, err)
		}
	}
	if o.labelCalls != 2 {
		t.Fatalf("oracle calls = %d, want 2", o.labelCalls)
	}
}

func TestLabelErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	o := &fakeOracle{err: boom}
	l := newTestLookups(o, &fakeRules{}, &fakeBlocks{})
	if _, err := l.Label(context.Background(), "ethereum", "0xa"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRulesAndCurrentBlockCached(t *testing.T) {
	r := &fakeRules{rules: []domain.Rule{{ID: "r1"}}}
	b := &fakeBlocks{current: 900}
	sizes := DefaultSizes()
	sizes.CurrentBlock.TTL = time.Hour
	l := NewLookups(b, r, &fakeOracle{}, sizes)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rules, err := l.Rules(ctx, "ethereum")
		if err != nil || len(rules) != 1 {
			t.Fatalf("rules = %v, %v", rules, err)
		}
		if n, _ := l.CurrentBlock(ctx, "ethereum"); n != 900 {
			t.Fatalf("current = %d", n)
		}
	}
	if r.calls != 1 || b.calls != 1 {
		t.Fatalf("calls rules=%d blocks=%d", r.calls, b.calls)
	}
	l.InvalidateRules()
	_, _ = l.Rules(ctx, "ethereum")
	if r.calls != 2 {
		t.Fatal("invalidate did not force reload")
	}
}
