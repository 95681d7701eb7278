// Package store holds helpers shared by the alert sink implementations.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

// AlertRow is one alerts-table row.
type AlertRow struct {
	BlockTimestamp time.Time
	BlockNumber    int64
	Hash           string
	RuleName       string
	Chain          string
	Scope          string
	Output         string
	Labels         []byte
}

// AlertRows flattens records into table rows sorted by block, position in
// block, trace path and log position, so the first transfer of a
// transaction consistently wins a (block_timestamp, hash, rule_name)
// collision. Labels carry the alert data plus rule_id as JSON.
func AlertRows(chain string, records []domain.AlertRecord) ([]AlertRow, error) {
	sorted := make([]domain.AlertRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Data, sorted[j].Data
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxPos != b.TxPos {
			return a.TxPos < b.TxPos
		}
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		if a.TraceAddress != b.TraceAddress {
			return a.TraceAddress < b.TraceAddress
		}
		return a.LogPos < b.LogPos
	})

	rows := make([]AlertRow, 0, len(sorted))
	for _, rec := range sorted {
		ts, err := rec.Data.Timestamp()
		if err != nil {
			return nil, fmt.Errorf("store: alert %s timestamp: %w", rec.Data.TxHash, err)
		}
		labels, err := json.Marshal(struct {
			domain.AlertData
			RuleID string `json:"rule_id"`
		}{rec.Data, rec.RuleID})
		if err != nil {
			return nil, fmt.Errorf("store: encode alert %s: %w", rec.Data.TxHash, err)
		}
		rows = append(rows, AlertRow{
			BlockTimestamp: ts,
			BlockNumber:    rec.Data.BlockNumber,
			Hash:           rec.Data.TxHash,
			RuleName:       rec.RuleID,
			Chain:          chain,
			Scope:          domain.Scope,
			Output:         rec.Data.Summary(),
			Labels:         labels,
		})
	}
	return rows, nil
}
