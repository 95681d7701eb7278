package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

func record(rule, hash string, blk, txpos, logpos int64) domain.AlertRecord {
	return domain.AlertRecord{
		Type:   domain.AlertType,
		RuleID: rule,
		Data: domain.AlertData{
			Chain:          "ethereum",
			BlockTimestamp: "2024-01-01 00:00:12",
			BlockNumber:    blk,
			TxHash:         hash,
			TxPos:          txpos,
			LogPos:         logpos,
			From:           "0xa",
			To:             "0xb",
			TokenName:      "USDT",
			ValueAmount:    int64(150),
			ValueUSD:       int64(150),
			Direction:      domain.DirectionOut,
		},
	}
}

func TestInsertAlertsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	batch := []domain.AlertRecord{
		record("r1", "0x01", 10, 0, -1),
		record("r1", "0x02", 10, 1, -1),
		record("r2", "0x01", 10, 0, -1),
	}
	n, err := s.InsertAlerts(ctx, "ethereum", batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("first insert = %d, want 3", n)
	}
	n, err = s.InsertAlerts(ctx, "ethereum", batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("re-insert = %d, want 0", n)
	}
	if c, _ := s.Count(ctx); c != 3 {
		t.Fatalf("count = %d", c)
	}
}

func TestInsertAlertsCollapsesSameTransaction(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// two transfers of one tx; the lower log position must win regardless
	// of input order
	later := record("r1", "0x01", 10, 0, 7)
	earlier := record("r1", "0x01", 10, 0, 3)
	n, err := s.InsertAlerts(ctx, "ethereum", []domain.AlertRecord{later, earlier})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1", n)
	}

	var labels string
	if err := s.db.QueryRowContext(ctx, "SELECT labels FROM alerts").Scan(&labels); err != nil {
		t.Fatal(err)
	}
	var got struct {
		LogPos int64  `json:"logpos"`
		RuleID string `json:"rule_id"`
	}
	if err := json.Unmarshal([]byte(labels), &got); err != nil {
		t.Fatal(err)
	}
	if got.LogPos != 3 || got.RuleID != "r1" {
		t.Fatalf("stored = %+v", got)
	}
}
