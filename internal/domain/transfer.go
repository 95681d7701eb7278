package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NativeToken is the pseudo-address used for native-currency transfers.
const NativeToken = "0x0000000000000000000000000000000000000000"

// TopLevelTrace marks a transaction-level value transfer; token transfers use
// an empty trace path and internal traces carry their own path.
const TopLevelTrace = "[]"

// RawTransfer is one value movement read from txs, traces or token_xfers,
// normalized to a common shape.
type RawTransfer struct {
	BlockTimestamp time.Time
	BlockNumber    int64
	TxHash         string
	TxPos          int64
	TraceAddress   string
	LogPos         int64
	From           string
	To             string
	TokenName      string
	TokenAddress   string
	Value          decimal.Decimal
	ValueAmount    decimal.Decimal
	Status         int
}

// TransferKey identifies a RawTransfer within one fetch.
type TransferKey struct {
	BlockNumber  int64
	TxHash       string
	TraceAddress string
	LogPos       int64
}

// Key returns the distinctness key of the transfer.
func (r RawTransfer) Key() TransferKey {
	return TransferKey{
		BlockNumber:  r.BlockNumber,
		TxHash:       r.TxHash,
		TraceAddress: r.TraceAddress,
		LogPos:       r.LogPos,
	}
}

// Less orders transfers by block, position in block, trace path, log position.
func (r RawTransfer) Less(o RawTransfer) bool {
	if r.BlockNumber != o.BlockNumber {
		return r.BlockNumber < o.BlockNumber
	}
	if r.TxPos != o.TxPos {
		return r.TxPos < o.TxPos
	}
	if r.TxHash != o.TxHash {
		return r.TxHash < o.TxHash
	}
	if r.TraceAddress != o.TraceAddress {
		return r.TraceAddress < o.TraceAddress
	}
	return r.LogPos < o.LogPos
}

// TxContext is the per-transaction metadata joined onto each transfer.
type TxContext struct {
	TxHash       string
	From         string
	To           string
	Status       int
	Selector     string
	FeeTokenName string
	Fee          *decimal.Decimal
	FeeAmount    *decimal.Decimal
}

// Direction classifies a transfer relative to a cluster.
type Direction string

const (
	DirectionInner   Direction = "inner"
	DirectionOut     Direction = "out"
	DirectionIn      Direction = "in"
	DirectionUnknown Direction = "unknown"
)

// Classify returns the direction implied by cluster membership of the sender
// and receiver.
func Classify(fromIn, toIn bool) Direction {
	switch {
	case fromIn && toIn:
		return DirectionInner
	case fromIn:
		return DirectionOut
	case toIn:
		return DirectionIn
	default:
		return DirectionUnknown
	}
}

// EnrichedTransfer is a RawTransfer with transaction context, valuation,
// classification and labels attached. Optional fields are nil when unknown.
type EnrichedTransfer struct {
	RawTransfer
	Chain string
	Tx    TxContext

	Action      string
	FeeSharable bool
	Direction   Direction
	FromTag     *string
	ToTag       *string

	Price    *decimal.Decimal
	ValueUSD *decimal.Decimal
	TxFeeUSD *decimal.Decimal

	FromLabel *string
	ToLabel   *string
	Link      string
}
