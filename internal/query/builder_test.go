package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

func testWindow() domain.Window {
	return domain.Window{
		Chain:      "ethereum",
		StartBlock: 100,
		EndBlock:   110,
		StartTime:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2024, 1, 1, 0, 2, 0, 0, time.UTC),
	}
}

func TestTransfersPushDown(t *testing.T) {
	b := NewBuilder(false, DefaultPushDownLimit)
	addrs := []string{"0xaaa", "0xbbb"}
	st, err := b.Transfers(testWindow(), domain.TransferFilter{Addresses: addrs})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Args) != 6 {
		t.Fatalf("args = %d, want 6", len(st.Args))
	}
	if got, ok := st.Args[5].([]string); !ok || len(got) != 2 {
		t.Fatalf("address arg = %#v", st.Args[5])
	}
	if n := strings.Count(st.SQL, "ANY($6::text[])"); n != 6 {
		t.Fatalf("address predicate count = %d, want 6\n%s", n, st.SQL)
	}
	for _, want := range []string{`"ethereum"."txs"`, `"ethereum"."traces"`, `"ethereum"."token_xfers"`} {
		if !strings.Contains(st.SQL, want) {
			t.Errorf("missing %s", want)
		}
	}
	if st.Args[4] != "ETH" {
		t.Fatalf("symbol arg = %v", st.Args[4])
	}
}

func TestTransfersLargeClusterSkipsPushDown(t *testing.T) {
	b := NewBuilder(false, 3)
	st, err := b.Transfers(testWindow(), domain.TransferFilter{Addresses: []string{"a", "b", "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(st.SQL, "ANY(") {
		t.Fatal("cluster at the limit must not be pushed down")
	}
	if len(st.Args) != 5 {
		t.Fatalf("args = %d", len(st.Args))
	}
}

func TestTransfersEmptyCluster(t *testing.T) {
	b := NewBuilder(false, DefaultPushDownLimit)
	_, err := b.Transfers(testWindow(), domain.TransferFilter{Addresses: []string{}})
	if !errors.Is(err, domain.ErrEmptyCluster) {
		t.Fatalf("err = %v", err)
	}
}

func TestTransfersFlags(t *testing.T) {
	b := NewBuilder(false, DefaultPushDownLimit)
	tests := []struct {
		name       string
		filter     domain.TransferFilter
		wantZero   bool
		wantFailed bool
	}{
		{"none", domain.TransferFilter{}, false, false},
		{"zero", domain.TransferFilter{DropZeroValue: true}, true, false},
		{"failed", domain.TransferFilter{DropFailedTransaction: true}, false, true},
		{"both", domain.TransferFilter{DropZeroValue: true, DropFailedTransaction: true}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := b.Transfers(testWindow(), tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if got := strings.Contains(st.SQL, "AND value > 0"); got != tt.wantZero {
				t.Errorf("zero filter = %v, want %v", got, tt.wantZero)
			}
			if got := strings.Contains(st.SQL, "AND trace_status = 1"); got != tt.wantFailed {
				t.Errorf("failed filter = %v, want %v", got, tt.wantFailed)
			}
		})
	}
}

func TestPendingModeSchema(t *testing.T) {
	b := NewBuilder(true, DefaultPushDownLimit)
	st, err := b.TxContexts(testWindow())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(st.SQL, `"ethereum_pending"."txs"`) {
		t.Fatalf("pending schema not used:\n%s", st.SQL)
	}
	if len(st.Args) != 5 {
		t.Fatalf("args = %d", len(st.Args))
	}
}

func TestInvalidChainRejected(t *testing.T) {
	b := NewBuilder(false, DefaultPushDownLimit)
	w := testWindow()
	w.Chain = `eth"; DROP TABLE x; --`
	if _, err := b.Transfers(w, domain.TransferFilter{}); !errors.Is(err, domain.ErrInvalidIdentifier) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Rules("Web3Soc", "ethereum"); !errors.Is(err, domain.ErrInvalidIdentifier) {
		t.Fatalf("err = %v", err)
	}
}

func TestFirstBlockOfDayBounds(t *testing.T) {
	b := NewBuilder(false, DefaultPushDownLimit)
	day := time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC)
	st, err := b.FirstBlockOfDay("bsc", day)
	if err != nil {
		t.Fatal(err)
	}
	from := st.Args[0].(time.Time)
	to := st.Args[1].(time.Time)
	if from.Hour() != 0 || to.Sub(from) != 24*time.Hour {
		t.Fatalf("bounds = %v .. %v", from, to)
	}
}

func TestRulesAndLookups(t *testing.T) {
	st, err := Rules("web3soc", "ethereum")
	if err != nil {
		t.Fatal(err)
	}
	if st.Args[0] != domain.RuleSet || st.Args[1] != "ethereum" {
		t.Fatalf("args = %v", st.Args)
	}
	lbl, err := AddressLabel("ethereum", "0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(lbl.SQL, "string_agg(label, ';'") {
		t.Fatalf("sql = %s", lbl.SQL)
	}
	sig := FunctionSignature("0xa9059cbb")
	if sig.Args[0] != "0xa9059cbb" || !strings.Contains(sig.SQL, `"metax"."func_signatures"`) {
		t.Fatalf("sig = %+v", sig)
	}
}
