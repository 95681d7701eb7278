package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType tags every record emitted by the pipeline.
const AlertType = "alert"

// Scope is the alerts.scope value written for cluster-flow alerts.
const Scope = "inout_flow"

// TimeLayout is the wall-clock format used in alert payloads.
const TimeLayout = "2006-01-02 15:04:05"

// AlertRecord is the envelope handed to the alert sink.
type AlertRecord struct {
	Type   string    `json:"type"`
	RuleID string    `json:"rule_id"`
	Data   AlertData `json:"data"`
}

// AlertData is the normalized, JSON-ready form of an EnrichedTransfer.
// Numeric fields hold int64, *big.Int, float64 or nil.
type AlertData struct {
	Chain          string    `json:"chain"`
	BlockTimestamp string    `json:"block_timestamp"`
	BlockNumber    int64     `json:"blknum"`
	TxHash         string    `json:"txhash"`
	TxPos          int64     `json:"txpos"`
	TraceAddress   string    `json:"trace_address"`
	LogPos         int64     `json:"logpos"`
	From           string    `json:"from_address"`
	To             string    `json:"to_address"`
	TokenName      string    `json:"token_name"`
	TokenAddress   string    `json:"token_address"`
	Value          any       `json:"value"`
	ValueAmount    any       `json:"value_amount"`
	TraceStatus    int       `json:"trace_status"`
	TxFrom         string    `json:"tx_from"`
	TxTo           string    `json:"tx_to"`
	TxStatus       int       `json:"tx_status"`
	TxFee          any       `json:"tx_fee"`
	TxFeeTokenName string    `json:"tx_fee_token_name"`
	TxFeeAmount    any       `json:"tx_fee_amount"`
	TxFeeSharable  bool      `json:"tx_fee_sharable"`
	Action         string    `json:"action"`
	Direction      Direction `json:"direction"`
	FromTag        *string   `json:"from_tag"`
	ToTag          *string   `json:"to_tag"`
	Price          any       `json:"price"`
	ValueUSD       any       `json:"value_usd"`
	TxFeeUSD       any       `json:"tx_fee_usd"`
	FromLabel      *string   `json:"from_label"`
	ToLabel        *string   `json:"to_label"`
	Link           string    `json:"link,omitempty"`
}

// Normalize converts decimals to integers when exact and to floats rounded to
// six fractional digits otherwise, and formats the block timestamp.
func (e EnrichedTransfer) Normalize() AlertData {
	return AlertData{
		Chain:          e.Chain,
		BlockTimestamp: FormatTime(e.BlockTimestamp),
		BlockNumber:    e.BlockNumber,
		TxHash:         e.TxHash,
		TxPos:          e.TxPos,
		TraceAddress:   e.TraceAddress,
		LogPos:         e.LogPos,
		From:           e.From,
		To:             e.To,
		TokenName:      e.TokenName,
		TokenAddress:   e.TokenAddress,
		Value:          NormalizeDecimal(e.Value),
		ValueAmount:    NormalizeDecimal(e.ValueAmount),
		TraceStatus:    e.Status,
		TxFrom:         e.Tx.From,
		TxTo:           e.Tx.To,
		TxStatus:       e.Tx.Status,
		TxFee:          normalizeOptional(e.Tx.Fee),
		TxFeeTokenName: e.Tx.FeeTokenName,
		TxFeeAmount:    normalizeOptional(e.Tx.FeeAmount),
		TxFeeSharable:  e.FeeSharable,
		Action:         e.Action,
		Direction:      e.Direction,
		FromTag:        e.FromTag,
		ToTag:          e.ToTag,
		Price:          normalizeOptional(e.Price),
		ValueUSD:       normalizeOptional(e.ValueUSD),
		TxFeeUSD:       normalizeOptional(e.TxFeeUSD),
		FromLabel:      e.FromLabel,
		ToLabel:        e.ToLabel,
		Link:           e.Link,
	}
}

// Timestamp parses BlockTimestamp back to a UTC time.
func (a AlertData) Timestamp() (time.Time, error) {
	return time.ParseInLocation(TimeLayout, a.BlockTimestamp, time.UTC)
}

// Summary is a one-line human description of the alert.
func (a AlertData) Summary() string {
	usd := "n/a"
	if a.ValueUSD != nil {
		usd = fmt.Sprintf("$%v", a.ValueUSD)
	}
	return fmt.Sprintf("%s %v %s (%s) %s -> %s", a.Direction, a.ValueAmount, a.TokenName, usd, a.From, a.To)
}

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NormalizeDecimal returns an int64 (or *big.Int when it overflows) for exact
// integers and a float64 rounded to six fractional digits otherwise.
func NormalizeDecimal(d decimal.Decimal) any {
	if d.Equal(d.Truncate(0)) {
		bi := d.BigInt()
		if bi.IsInt64() {
			return bi.Int64()
		}
		return new(big.Int).Set(bi)
	}
	return d.Round(6).InexactFloat64()
}

func normalizeOptional(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return NormalizeDecimal(*d)
}
