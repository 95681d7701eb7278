// Package query renders the parameterized SQL used to read transfers,
// transaction context, block bounds, rules and oracle lookups. Every value is
// a bound parameter; schema names are validated and quoted.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/jackc/pgx/v5"
)

// DefaultPushDownLimit is the cluster size below which the address set is
// pushed into SQL.
const DefaultPushDownLimit = 100

// signatureSchema holds the shared 4-byte selector table.
const signatureSchema = "metax"

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Statement is rendered SQL plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// args collects positional parameters and returns their placeholders.
type args []any

func (a *args) bind(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

// Builder renders chain-data queries. In pending mode the data tables are
// read from "<chain>_pending".
type Builder struct {
	pending       bool
	pushDownLimit int
}

// NewBuilder returns a Builder. A non-positive pushDownLimit disables the
// address push-down entirely.
func NewBuilder(pendingMode bool, pushDownLimit int) *Builder {
	return &Builder{pending: pendingMode, pushDownLimit: pushDownLimit}
}

// ValidateIdent checks that name is a plain lower-case SQL identifier.
func ValidateIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidIdentifier, name)
	}
	return nil
}

func table(schema, name string) (string, error) {
	if err := ValidateIdent(schema); err != nil {
		return "", err
	}
	return pgx.Identifier{schema, name}.Sanitize(), nil
}

func (b *Builder) dataTable(chain, name string) (string, error) {
	schema := chain
	if b.pending {
		schema += "_pending"
	}
	return table(schema, name)
}

// PushDown reports whether a cluster of n addresses is filtered in SQL.
func (b *Builder) PushDown(n int) bool {
	return b.pushDownLimit > 0 && n < b.pushDownLimit
}

// Transfers renders the union of native, internal-trace and token transfers
// for the window. f.Addresses is pushed down only when PushDown allows; an
// empty non-nil set is rejected with domain.ErrEmptyCluster.
func (b *Builder) Transfers(w domain.Window, f domain.TransferFilter) (Statement, error) {
	if f.Addresses != nil && len(f.Addresses) == 0 {
		return Statement{}, domain.ErrEmptyCluster
	}
	txs, err := b.dataTable(w.Chain, "txs")
	if err != nil {
		return Statement{}, err
	}
	traces, err := b.dataTable(w.Chain, "traces")
	if err != nil {
		return Statement{}, err
	}
	xfers, err := b.dataTable(w.Chain, "token_xfers")
	if err != nil {
		return Statement{}, err
	}

	var a args
	stTime := a.bind(w.StartTime)
	etTime := a.bind(w.EndTime)
	stBlk := a.bind(w.StartBlock)
	etBlk := a.bind(w.EndBlock)
	symbol := a.bind(domain.NativeSymbol(w.Chain))
	window := fmt.Sprintf(
		"block_timestamp >= %s AND block_timestamp <= %s AND blknum >= %s AND blknum <= %s",
		stTime, etTime, stBlk, etBlk,
	)

	addrFilter := func(from, to string) string { return "" }
	if f.Addresses != nil && b.PushDown(len(f.Addresses)) {
		set := a.bind(f.Addresses)
		addrFilter = func(from, to string) string {
			return fmt.Sprintf("\n        AND (%s = ANY(%s::text[]) OR %s = ANY(%s::text[]))", from, set, to, set)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `WITH xfers AS (
    SELECT
        block_timestamp, blknum, txhash, txpos,
        '[]'::text AS trace_address,
        -1::bigint AS logpos,
        from_address,
        COALESCE(to_address, receipt_contract_address) AS to_address,
        %[1]s::text AS token_name,
        '%[2]s'::text AS token_address,
        CASE receipt_status WHEN 0 THEN 0 ELSE value END AS value,
        CASE receipt_status WHEN 0 THEN 0 ELSE value / 1e18 END AS value_amount,
        COALESCE(receipt_status, 1) AS trace_status
    FROM %[3]s
    WHERE from_address IS NOT NULL
        AND %[4]s%[5]s
    UNION ALL
    SELECT
        block_timestamp, blknum, txhash, txpos,
        trace_address,
        -1::bigint AS logpos,
        from_address,
        to_address,
        %[1]s::text AS token_name,
        '%[2]s'::text AS token_address,
        value,
        value / 1e18 AS value_amount,
        COALESCE(status, 1) AS trace_status
    FROM %[6]s
    WHERE trace_address <> '[]'
        AND %[4]s%[7]s
    UNION ALL
    SELECT
        block_timestamp, blknum, txhash, txpos,
        ''::text AS trace_address,
        logpos,
        from_address,
        to_address,
        COALESCE(symbol, name) AS token_name,
        token_address,
        value,
        value / power(10::numeric, decimals) AS value_amount,
        1 AS trace_status
    FROM %[8]s
    WHERE decimals IS NOT NULL
        AND %[4]s%[9]s
)
SELECT DISTINCT
    block_timestamp, blknum, txhash, txpos, trace_address, logpos,
    from_address, to_address, token_name, token_address,
    value::text AS value,
    value_amount::text AS value_amount,
    trace_status
FROM xfers
WHERE TRUE`,
		symbol, domain.NativeToken, txs, window,
		addrFilter("from_address", "COALESCE(to_address, receipt_contract_address)"),
		traces, addrFilter("from_address", "to_address"),
		xfers, addrFilter("from_address", "to_address"),
	)
	if f.DropZeroValue {
		sb.WriteString("\n    AND value > 0")
	}
	if f.DropFailedTransaction {
		sb.WriteString("\n    AND trace_status = 1")
	}
	sb.WriteString("\nORDER BY blknum, txpos, trace_address, logpos")

	return Statement{SQL: sb.String(), Args: a}, nil
}

// TxContexts renders the per-transaction metadata read for the window.
func (b *Builder) TxContexts(w domain.Window) (Statement, error) {
	txs, err := b.dataTable(w.Chain, "txs")
	if err != nil {
		return Statement{}, err
	}
	var a args
	symbol := a.bind(domain.NativeSymbol(w.Chain))
	sql := fmt.Sprintf(`SELECT DISTINCT ON (txhash)
    txhash,
    tx_from,
    tx_to,
    action,
    tx_status,
    tx_fee_token_name,
    (gas_price * gas_used)::text AS tx_fee,
    (gas_price * gas_used / 1e18)::text AS tx_fee_amount
FROM (
    SELECT
        txhash,
        from_address AS tx_from,
        COALESCE(to_address, receipt_contract_address) AS tx_to,
        COALESCE(substring(input FROM 1 FOR 10), '') AS action,
        CASE WHEN receipt_status IS NULL OR receipt_status = 1 THEN 1 ELSE 0 END AS tx_status,
        %s::text AS tx_fee_token_name,
        COALESCE(receipt_effective_gas_price, gas_price)::numeric AS gas_price,
        receipt_gas_used::numeric AS gas_used
    FROM %s
    WHERE block_timestamp >= %s AND block_timestamp <= %s
        AND blknum >= %s AND blknum <= %s
) t
ORDER BY txhash`,
		symbol, txs, a.bind(w.StartTime), a.bind(w.EndTime), a.bind(w.StartBlock), a.bind(w.EndBlock))
	return Statement{SQL: sql, Args: a}, nil
}

// BlockTimeRange renders the min/max block timestamp of a block range.
func (b *Builder) BlockTimeRange(chain string, startBlock, endBlock int64) (Statement, error) {
	blocks, err := b.dataTable(chain, "blocks")
	if err != nil {
		return Statement{}, err
	}
	var a args
	sql := fmt.Sprintf(
		"SELECT min(block_timestamp), max(block_timestamp) FROM %s WHERE blknum >= %s AND blknum <= %s",
		blocks, a.bind(startBlock), a.bind(endBlock),
	)
	return Statement{SQL: sql, Args: a}, nil
}

// CurrentBlock renders the latest block number query.
func (b *Builder) CurrentBlock(chain string) (Statement, error) {
	blocks, err := b.dataTable(chain, "blocks")
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: fmt.Sprintf("SELECT max(blknum) FROM %s", blocks)}, nil
}

// FirstBlockOfDay renders the lowest block number produced on day (UTC).
func (b *Builder) FirstBlockOfDay(chain string, day time.Time) (Statement, error) {
	blocks, err := b.dataTable(chain, "blocks")
	if err != nil {
		return Statement{}, err
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var a args
	sql := fmt.Sprintf(
		"SELECT min(blknum) FROM %s WHERE block_timestamp >= %s AND block_timestamp < %s",
		blocks, a.bind(start), a.bind(start.AddDate(0, 0, 1)),
	)
	return Statement{SQL: sql, Args: a}, nil
}

// Rules renders the rule catalog query for chain.
func Rules(metaSchema, chain string) (Statement, error) {
	rules, err := table(metaSchema, "rules")
	if err != nil {
		return Statement{}, err
	}
	var a args
	sql := fmt.Sprintf(
		"SELECT id::text, detail::text FROM %s WHERE ruleset = %s AND chain = %s ORDER BY id",
		rules, a.bind(domain.RuleSet), a.bind(chain),
	)
	return Statement{SQL: sql, Args: a}, nil
}

// AddressLabel renders the label lookup; multiple labels are joined with ';'.
func AddressLabel(chain, address string) (Statement, error) {
	labels, err := table(chain, "addr_labels")
	if err != nil {
		return Statement{}, err
	}
	var a args
	sql := fmt.Sprintf(
		"SELECT string_agg(label, ';' ORDER BY label) FROM %s WHERE address = %s",
		labels, a.bind(address),
	)
	return Statement{SQL: sql, Args: a}, nil
}

// FunctionSignature renders the selector lookup. The function name is the
// text signature up to the first parenthesis.
func FunctionSignature(selector string) Statement {
	tbl := pgx.Identifier{signatureSchema, "func_signatures"}.Sanitize()
	return Statement{
		SQL:  fmt.Sprintf("SELECT split_part(text_sign, '(', 1) FROM %s WHERE byte_sign = $1 LIMIT 1", tbl),
		Args: []any{selector},
	}
}
