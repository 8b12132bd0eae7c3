package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/internal/config"
	"github.com/nrzngr/exvoria-strat-management/internal/core"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", "", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateSeedAndList(t *testing.T) {
	db := filepath.Join(t.TempDir(), "stratbook.db")
	base := []string{"--storage", "sqlite", "--sqlite-path", db, "--blob", "memory"}

	out, err := run(t, append(base, "migrate", "--seed")...)
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (sqlite)")
	assert.Contains(t, out, "seeded 4 maps")

	out, err = run(t, append(base, "migrate", "--seed")...)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 0 maps")

	out, err = run(t, append(base, "maps", "list", "-q", "harbor")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Frozen Harbor")
	assert.NotContains(t, out, "Desert Storm")
}

func TestStrategiesShowLocal(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "stratbook.db")
	store, err := core.OpenPersistentStore(ctx, core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: db})
	require.NoError(t, err)
	svc := core.NewService(store)
	m, err := svc.CreateMap(ctx, core.MapInput{Name: "Desert Storm"})
	require.NoError(t, err)
	res, err := svc.CreateStrategy(ctx, core.StrategyInput{MapID: m.ID, Title: "Rush A"})
	require.NoError(t, err)
	_, err = svc.UpdateStrategy(ctx, res.Detail.Strategy.ID, core.StrategyUpdate{Title: "Rush A v2"})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	base := []string{"--storage", "sqlite", "--sqlite-path", db, "--blob", "none"}
	out, err := run(t, append(base, "strategies", "show", res.Detail.Strategy.ID)...)
	require.NoError(t, err)
	var detail domain.StrategyDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, "Rush A v2", detail.Title())

	out, err = run(t, append(base, "strategies", "show", res.Detail.Strategy.ID, "--version", "1")...)
	require.NoError(t, err)
	var v1 domain.VersionDetail
	require.NoError(t, json.Unmarshal([]byte(out), &v1))
	assert.Equal(t, "Rush A", v1.Version.Title)

	_, err = run(t, append(base, "strategies", "show", "missing")...)
	assert.True(t, domain.IsNotFound(err))
	_, err = run(t, "--storage", "mysql", "maps", "list")
	assert.Error(t, err)
}

func TestServeAndRemoteList(t *testing.T) {
	a := &app{cfg: config.Default(), logger: zap.NewNop()}
	a.cfg.Server.Addr = "127.0.0.1:0"
	a.cfg.Blob.Driver = "memory"

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	out, err := run(t, "--server", "http://"+addr, "maps", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Desert Storm", "memory store is seeded by default")

	_, err = run(t, "--server", "http://"+addr, "strategies", "show", "missing")
	assert.Error(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
