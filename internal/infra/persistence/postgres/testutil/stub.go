// Package testutil provides an in-memory stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Scripted is a canned result for queries containing Match.
type Scripted struct {
	Match   string
	Columns []string
	Rows    [][]driver.Value
	Err     error
}

// StubConn records statements issued by the postgres store and emulates a
// tiny subset of SQL: INSERT, DELETE and SELECT with equality predicates.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Queries    []string
	Tables     map[string][]map[string]any
	Defaults   map[string]map[string]any
	Scripts    []Scripted
	ExecErrors map[string]error
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailPing   bool
	Commits    int
	Rollbacks  int
}

var driverSeq struct {
	sync.Mutex
	n int
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	driverSeq.Lock()
	driverSeq.n++
	name := fmt.Sprintf("stubpg%d_%d", time.Now().UnixNano(), driverSeq.n)
	driverSeq.Unlock()
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

// Script registers a canned query result.
func (c *StubConn) Script(s Scripted) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Scripts = append(c.Scripts, s)
}

// ExecCount reports how many executed statements contain substr.
func (c *StubConn) ExecCount(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, stmt := range c.Execs {
		if strings.Contains(stmt, substr) {
			n++
		}
	}
	return n
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	for match, err := range c.ExecErrors {
		if strings.Contains(query, match) {
			return nil, err
		}
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(map[string]any, len(cols))
		for col, v := range c.Defaults[table] {
			row[col] = v
		}
		for i, col := range cols {
			row[col] = args[i].Value
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM"):
		table, preds, err := parseDelete(query)
		if err != nil {
			return nil, err
		}
		var kept []map[string]any
		removed := 0
		for _, row := range c.Tables[table] {
			if matches(row, preds, args) {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		c.Tables[table] = kept
		return driver.RowsAffected(removed), nil
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	for _, s := range c.Scripts {
		if strings.Contains(query, s.Match) {
			if s.Err != nil {
				return nil, s.Err
			}
			return &stubRows{cols: s.Columns, rows: s.Rows}, nil
		}
	}
	table, cols, preds, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	values := make([][]driver.Value, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		if !matches(row, preds, args) {
			continue
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.Rollbacks++
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// predicate is a "col = $n" equality taken from a WHERE clause.
type predicate struct {
	col string
	arg int
}

func matches(row map[string]any, preds []predicate, args []driver.NamedValue) bool {
	for _, p := range preds {
		if p.arg < 1 || p.arg > len(args) {
			continue
		}
		if row[p.col] != args[p.arg-1].Value {
			return false
		}
	}
	return true
}

func parseWhere(clause string) []predicate {
	lower := strings.ToLower(clause)
	for _, stop := range []string{" order by ", " limit "} {
		if idx := strings.Index(lower, stop); idx != -1 {
			lower = lower[:idx]
		}
	}
	var out []predicate
	for _, part := range strings.Split(lower, " and ") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		val := strings.TrimSpace(kv[1])
		if !strings.HasPrefix(val, "$") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(val, "$"))
		if err != nil {
			continue
		}
		out = append(out, predicate{col: strings.TrimSpace(kv[0]), arg: n})
	}
	return out
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

func parseDelete(query string) (string, []predicate, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	prefix := "delete from "
	whereToken := " where "
	if !strings.HasPrefix(lower, prefix) {
		return "", nil, fmt.Errorf("cannot parse delete: %s", query)
	}
	rest := strings.TrimSpace(lower[len(prefix):])
	whereIdx := strings.Index(rest, whereToken)
	if whereIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse delete: %s", query)
	}
	table := strings.TrimSpace(rest[:whereIdx])
	return table, parseWhere(rest[whereIdx+len(whereToken):]), nil
}

func parseSelect(query string) (string, []string, []predicate, error) {
	flat := strings.Join(strings.Fields(query), " ")
	lower := strings.ToLower(flat)
	selectPrefix := "select "
	fromToken := " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols := flat[len(selectPrefix):fromIdx]
	rest := strings.TrimSpace(lower[fromIdx+len(fromToken):])
	if rest == "" {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	table := strings.Fields(rest)[0]
	var preds []predicate
	if idx := strings.Index(rest, " where "); idx != -1 {
		preds = parseWhere(rest[idx+len(" where "):])
	}
	return table, splitColumns(cols), preds, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
