package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// Session is the query surface shared by *sql.Conn and *sql.Tx. The gateway
// is the only component touching the driver; nothing above it sees driver
// types.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Gateway executes typed queries and single-row inserts against SQL Server
// sessions. Column max lengths are memoized per (table, column).
type Gateway struct {
	log *zap.SugaredLogger

	mu         sync.Mutex
	maxLengths map[string]int
}

// NewGateway creates a SQL gateway.
func NewGateway(log *zap.SugaredLogger) *Gateway {
	return &Gateway{
		log:        log,
		maxLengths: make(map[string]int),
	}
}

// quoteIdent bracket-quotes a SQL Server identifier.
func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// bindValue converts a scalar union value into a driver-bindable value.
// Values are always bound as parameters; the gateway never interpolates
// them into SQL text.
func bindValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		// Bound as text; the server converts to DECIMAL on assignment,
		// which keeps full precision.
		return val.String()
	case int:
		return int64(val)
	case time.Time:
		return mssql.DateTime1(val)
	default:
		return val
	}
}

// BuildQuery appends an operator-aware WHERE clause built from params to the
// base projection query. IN expands to a placeholder list, BETWEEN to two
// placeholders. Returns the final SQL and the named arguments.
func BuildQuery(base string, params []entity.QueryParam) (string, []any, error) {
	if len(params) == 0 {
		return base, nil, nil
	}

	var (
		clauses []string
		args    []any
		n       int
	)
	next := func(v any) string {
		n++
		name := fmt.Sprintf("p%d", n)
		args = append(args, sql.Named(name, bindValue(v)))
		return "@" + name
	}

	for _, p := range params {
		if !entity.ValidOperator(p.Operator) {
			return "", nil, fmt.Errorf("%w: %q", entity.ErrInvalidOperator, p.Operator)
		}
		ident := quoteIdent(p.Field)

		switch p.Operator {
		case entity.OpIn:
			values, ok := asSlice(p.Value)
			if !ok || len(values) == 0 {
				return "", nil, fmt.Errorf("IN parameter for %s requires a non-empty list", p.Field)
			}
			placeholders := make([]string, 0, len(values))
			for _, v := range values {
				placeholders = append(placeholders, next(v))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", ident, strings.Join(placeholders, ", ")))

		case entity.OpBetween:
			if p.Value2 == nil {
				return "", nil, fmt.Errorf("BETWEEN parameter for %s requires two values", p.Field)
			}
			clauses = append(clauses, fmt.Sprintf("%s BETWEEN %s AND %s", ident, next(p.Value), next(p.Value2)))

		default:
			clauses = append(clauses, fmt.Sprintf("%s %s %s", ident, p.Operator, next(p.Value)))
		}
	}

	keyword := "WHERE"
	if strings.Contains(strings.ToUpper(base), " WHERE ") {
		keyword = "AND"
	}
	return fmt.Sprintf("%s %s %s", base, keyword, strings.Join(clauses, " AND ")), args, nil
}

func asSlice(v any) ([]any, bool) {
	switch vals := v.(type) {
	case []any:
		return vals, true
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(vals))
		for i, n := range vals {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// Query runs a projection query and scans the result set into rows of the
// scalar union, preserving source order.
func (g *Gateway) Query(ctx context.Context, s Session, query string, args []any) ([]entity.Row, error) {
	queryCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := s.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, WrapSQL("query failed", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, WrapSQL("failed to read result columns", err)
	}

	var result []entity.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, WrapSQL("failed to scan row", err)
		}

		row := make(entity.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeScalar(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapSQL("result iteration failed", err)
	}
	return result, nil
}

// normalizeScalar folds driver values into the closed scalar union.
func normalizeScalar(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case int64, bool, string, time.Time:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Insert writes one row into table and returns the affected-row count via
// @@ROWCOUNT. Strings longer than the destination column are truncated, not
// rejected. Duplicate-key violations surface as a Duplicate-classified
// error, distinct from connection failures.
func (g *Gateway) Insert(ctx context.Context, s Session, table string, row entity.Row, columns []string) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert into %s with no columns", table)
	}

	idents := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for i, col := range columns {
		v := row[col]
		if str, ok := v.(string); ok {
			v = g.truncateForColumn(ctx, s, table, col, str)
		}
		name := fmt.Sprintf("p%d", i+1)
		idents = append(idents, quoteIdent(col))
		placeholders = append(placeholders, "@"+name)
		args = append(args, sql.Named(name, bindValue(v)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s); SELECT @@ROWCOUNT",
		quoteIdent(table), strings.Join(idents, ", "), strings.Join(placeholders, ", "))

	insertCtx, cancel := context.WithTimeout(ctx, InsertTimeout)
	defer cancel()

	var affected int64
	if err := s.QueryRowContext(insertCtx, query, args...).Scan(&affected); err != nil {
		return 0, WrapSQL(fmt.Sprintf("insert into %s failed", table), err)
	}
	return affected, nil
}

// ClearTable deletes all rows of table. A missing table is reported as
// ErrTableNotFound so callers can treat it as already empty.
func (g *Gateway) ClearTable(ctx context.Context, s Session, table string) (int64, error) {
	execCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	res, err := s.ExecContext(execCtx, fmt.Sprintf("DELETE FROM %s", quoteIdent(table)))
	if err != nil {
		if IsTableNotFound(err) {
			return 0, ErrTableNotFound
		}
		return 0, WrapSQL(fmt.Sprintf("failed to clear %s", table), err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// CountRows counts the rows of table with a NOLOCK read hint.
func (g *Gateway) CountRows(ctx context.Context, s Session, table string) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WITH (NOLOCK)", quoteIdent(table))
	if err := s.QueryRowContext(queryCtx, query).Scan(&count); err != nil {
		if IsTableNotFound(err) {
			return 0, ErrTableNotFound
		}
		return 0, WrapSQL(fmt.Sprintf("failed to count %s", table), err)
	}
	return count, nil
}

// ExistingKeys projects the distinct merge-key columns of table into a set
// of canonical merge keys, reading with NOLOCK.
func (g *Gateway) ExistingKeys(ctx context.Context, s Session, table string, keyFields []string) (map[string]struct{}, error) {
	idents := make([]string, 0, len(keyFields))
	for _, f := range keyFields {
		idents = append(idents, quoteIdent(f))
	}
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WITH (NOLOCK)",
		strings.Join(idents, ", "), quoteIdent(table))

	rows, err := g.Query(ctx, s, query, nil)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		keys[row.MergeKey(keyFields)] = struct{}{}
	}
	return keys, nil
}

// ColumnTypes returns the declared data type of every column of table.
func (g *Gateway) ColumnTypes(ctx context.Context, s Session, table string) (map[string]string, error) {
	queryCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := s.QueryContext(queryCtx,
		"SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1",
		sql.Named("p1", table))
	if err != nil {
		return nil, WrapSQL(fmt.Sprintf("failed to read column types of %s", table), err)
	}
	defer rows.Close()

	types := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, WrapSQL("failed to scan column metadata", err)
		}
		types[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return nil, WrapSQL("column metadata iteration failed", err)
	}
	return types, nil
}

// ColumnMaxLength returns the character capacity of a column, or 0 when the
// column is unbounded or unknown. Results are memoized per (table, column).
func (g *Gateway) ColumnMaxLength(ctx context.Context, s Session, table, column string) int {
	cacheKey := table + "|" + column

	g.mu.Lock()
	if length, ok := g.maxLengths[cacheKey]; ok {
		g.mu.Unlock()
		return length
	}
	g.mu.Unlock()

	queryCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	var maxLen sql.NullInt64
	err := s.QueryRowContext(queryCtx,
		"SELECT CHARACTER_MAXIMUM_LENGTH FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1 AND COLUMN_NAME = @p2",
		sql.Named("p1", table), sql.Named("p2", column)).Scan(&maxLen)

	length := 0
	if err == nil && maxLen.Valid && maxLen.Int64 > 0 {
		length = int(maxLen.Int64)
	}

	g.mu.Lock()
	g.maxLengths[cacheKey] = length
	g.mu.Unlock()
	return length
}

// truncateForColumn cuts a string to the destination column's capacity,
// logging a structured warning when data is lost.
func (g *Gateway) truncateForColumn(ctx context.Context, s Session, table, column, value string) string {
	maxLen := g.ColumnMaxLength(ctx, s, table, column)
	if maxLen == 0 || len([]rune(value)) <= maxLen {
		return value
	}
	g.log.Warnw("string truncated to column capacity",
		"table", table, "column", column, "max_length", maxLen, "value_length", len([]rune(value)))
	return string([]rune(value)[:maxLen])
}
