package agentstesting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	clickhousetesting "github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse/testing"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

// ClientInfo holds a test client, its namespace and the config to reach it.
type ClientInfo struct {
	Client    clickhouse.Client
	Namespace namespace.Namespace
	Config    clickhouse.Config
}

// NewClientWithInfo creates a fresh namespace with migrations applied and returns
// a client for it.
func NewClientWithInfo(t *testing.T, db *clickhousetesting.DB) *ClientInfo {
	ns := clickhousetesting.NewNamespace(t, db)
	client := clickhousetesting.NewClient(t, db)
	log := NewLogger()

	conn, err := client.Conn(t.Context())
	require.NoError(t, err)
	require.NoError(t, clickhouse.EnsureNamespace(t.Context(), log, conn, ns))

	cfg := db.Config(ns.Database())
	require.NoError(t, clickhouse.RunMigrations(t.Context(), log, cfg))

	return &ClientInfo{
		Client:    client,
		Namespace: ns,
		Config:    db.Config(clickhouse.DefaultDatabase),
	}
}
