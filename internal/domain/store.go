package domain

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// Window is an inclusive block range together with its wall-clock bounds.
type Window struct {
	Chain      string
	StartBlock int64
	EndBlock   int64
	StartTime  time.Time
	EndTime    time.Time
}

// TransferFilter shapes the transfer query. A nil Addresses slice disables
// the address push-down.
type TransferFilter struct {
	Addresses             []string
	DropZeroValue         bool
	DropFailedTransaction bool
}

// TransferReader reads raw ledger data for a window.
type TransferReader interface {
	FetchTransfers(ctx context.Context, w Window, f TransferFilter) ([]RawTransfer, error)
	FetchTxContexts(ctx context.Context, w Window) (map[string]TxContext, error)
	BlockTimeRange(ctx context.Context, chain string, startBlock, endBlock int64) (time.Time, time.Time, error)
	CurrentBlock(ctx context.Context, chain string) (int64, error)
	FirstBlockOfDay(ctx context.Context, chain string, day time.Time) (int64, error)
}

// RuleReader loads the cluster rules of a chain.
type RuleReader interface {
	ListRules(ctx context.Context, chain string) ([]Rule, error)
}

// OracleReader resolves address labels and function selectors. Both return
// ErrNotFound when the oracle has no entry.
type OracleReader interface {
	AddressLabel(ctx context.Context, chain, address string) (string, error)
	FunctionName(ctx context.Context, selector string) (string, error)
}

// AlertSink persists alert records, ignoring records whose
// (block_timestamp, hash, rule_name) key already exists. It returns the number
// of rows actually inserted.
type AlertSink interface {
	InsertAlerts(ctx context.Context, chain string, records []AlertRecord) (int64, error)
}

// PriceLookup resolves the unit USD price of a token at a point in time. A
// nil price means no price is known.
type PriceLookup interface {
	Price(ctx context.Context, chain, token string, at time.Time) (*decimal.Decimal, error)
}

// PriceCache memoizes price lookups across processes. found is false on a
// miss; a hit may carry a nil price.
type PriceCache interface {
	GetPrice(ctx context.Context, chain, token string, at time.Time) (price *decimal.Decimal, found bool, err error)
	SetPrice(ctx context.Context, chain, token string, at time.Time, price *decimal.Decimal) error
}

// WindowLockKey names the lock serializing windows of one chain.
func WindowLockKey(chain string) string {
	return RuleSet + ":" + chain
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// AlertArchiver copies a rule's alert batch to cold storage.
type AlertArchiver interface {
	ArchiveAlerts(ctx context.Context, w Window, ruleID string, records []AlertRecord) error
}

// Notifier delivers operator messages about process health.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}
