package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

func TestAlertRowsOrderingAndPayload(t *testing.T) {
	mk := func(blk, pos int64, hash string) domain.AlertRecord {
		return domain.AlertRecord{
			Type:   domain.AlertType,
			RuleID: "rule-1",
			Data: domain.AlertData{
				BlockTimestamp: "2024-02-03 04:05:06",
				BlockNumber:    blk,
				TxPos:          pos,
				TxHash:         hash,
				Direction:      domain.DirectionIn,
				ValueAmount:    12.5,
				TokenName:      "ETH",
			},
		}
	}
	rows, err := AlertRows("ethereum", []domain.AlertRecord{mk(11, 0, "0xc"), mk(10, 5, "0xb"), mk(10, 2, "0xa")})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Hash != "0xa" || rows[1].Hash != "0xb" || rows[2].Hash != "0xc" {
		t.Fatalf("order = %s %s %s", rows[0].Hash, rows[1].Hash, rows[2].Hash)
	}
	r := rows[0]
	if !r.BlockTimestamp.Equal(time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)) {
		t.Fatalf("ts = %v", r.BlockTimestamp)
	}
	if r.Scope != domain.Scope || r.RuleName != "rule-1" || r.Chain != "ethereum" {
		t.Fatalf("row = %+v", r)
	}
	if !strings.HasPrefix(r.Output, "in 12.5 ETH (n/a)") {
		t.Fatalf("output = %q", r.Output)
	}
	var m map[string]any
	if err := json.Unmarshal(r.Labels, &m); err != nil {
		t.Fatal(err)
	}
	if m["rule_id"] != "rule-1" || m["txhash"] != "0xa" || m["value_usd"] != nil {
		t.Fatalf("labels = %v", m)
	}
}

func TestAlertRowsRejectsBadTimestamp(t *testing.T) {
	_, err := AlertRows("ethereum", []domain.AlertRecord{{Data: domain.AlertData{BlockTimestamp: "yesterday"}}})
	if err == nil {
		t.Fatal("expected error")
	}
}
