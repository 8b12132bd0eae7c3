package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	for _, id := range []string{"map-1", "map-2"} {
		_, err := conn.ExecContext(ctx, "INSERT INTO maps (id, name) VALUES ($1,$2)", []driver.NamedValue{
			{Value: id},
			{Value: "Name " + id},
		})
		if err != nil {
			t.Fatalf("ExecContext insert: %v", err)
		}
	}
	if len(conn.Tables["maps"]) != 2 {
		t.Fatalf("expected maps rows to be stored, got %v", conn.Tables["maps"])
	}

	rows, err := conn.QueryContext(ctx, "SELECT id, name FROM maps WHERE id = $1", []driver.NamedValue{{Value: "map-2"}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "map-2" || dest[1] != "Name map-2" {
		t.Fatalf("unexpected row values: %v", dest)
	}

	res, err := conn.ExecContext(ctx, "DELETE FROM maps WHERE id = $1", []driver.NamedValue{{Value: "map-1"}})
	if err != nil {
		t.Fatalf("ExecContext delete: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 || len(conn.Tables["maps"]) != 1 {
		t.Fatalf("expected one row removed, affected=%d remaining=%v", n, conn.Tables["maps"])
	}
}

func TestStubDBScriptedQueries(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.Script(Scripted{Match: "strategy_with_details", Columns: []string{"doc"}, Rows: [][]driver.Value{{`{"strategy":{}}`}}})

	rows, err := conn.QueryContext(ctx, "SELECT strategy_with_details($1)::text", []driver.NamedValue{{Value: "s-1"}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != `{"strategy":{}}` {
		t.Fatalf("unexpected scripted row: %v", dest)
	}
	if conn.ExecCount("anything") != 0 || len(conn.Queries) != 1 {
		t.Fatalf("unexpected bookkeeping: execs=%v queries=%v", conn.Execs, conn.Queries)
	}
}
