package events

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fluxorio/fluxpool/pkg/db"
)

// DefaultTable is the table SQLSink writes to
const DefaultTable = "access_log"

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSink inserts one row per access event. Times are stored as unix
// microseconds so the schema is the same on every driver.
type SQLSink struct {
	pool    *db.Pool
	table   string
	insert  string
	timeout time.Duration
}

// NewSQLSink creates table (DefaultTable if empty) when missing and returns
// a sink writing to it. Each insert is bounded by timeout (1s if zero).
func NewSQLSink(ctx context.Context, pool *db.Pool, table string, timeout time.Duration) (*SQLSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identRE.MatchString(table) {
		return nil, fmt.Errorf("access log table %q is not a valid identifier", table)
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
	request_id  VARCHAR(64) NOT NULL,
	ts_us       BIGINT      NOT NULL,
	remote_addr VARCHAR(255) NOT NULL,
	method      VARCHAR(16) NOT NULL,
	path        TEXT        NOT NULL,
	proto       VARCHAR(16) NOT NULL,
	status      INTEGER     NOT NULL,
	bytes       BIGINT      NOT NULL,
	duration_us BIGINT      NOT NULL
)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}

	cols := []string{"request_id", "ts_us", "remote_addr", "method", "path", "proto", "status", "bytes", "duration_us"}
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = pool.Placeholder(i + 1)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(params, ", "))

	return &SQLSink{pool: pool, table: table, insert: insert, timeout: timeout}, nil
}

// Table returns the table events are written to
func (s *SQLSink) Table() string {
	return s.table
}

func (s *SQLSink) Publish(ctx context.Context, ev AccessEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, s.insert,
		ev.RequestID,
		ev.Time.UnixMicro(),
		ev.RemoteAddr,
		ev.Method,
		ev.Path,
		ev.Proto,
		ev.Status,
		ev.Bytes,
		ev.Duration.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert access event: %w", err)
	}
	return nil
}
