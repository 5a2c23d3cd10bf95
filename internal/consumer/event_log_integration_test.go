//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/wellness/internal/events"
	"example.com/wellness/internal/store/postgres"
)

func TestEventLogHandlerStoresEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	handler := NewEventLogHandler(pool)

	payload := json.RawMessage(`{"pass_id":"p-1","from":"2025-06-10","to":"2025-06-11","days":["2025-06-11"]}`)
	msg := Message{
		EventType: events.TypeDataUpdated,
		PassID:    "p-1",
		Topic:     "wellness.events",
		Partition: 0,
		Offset:    5,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM consumed_events`).Scan(&count))
	require.Equal(t, 1, count)

	var stored []byte
	var passID string
	require.NoError(t, pool.QueryRow(ctx, `SELECT payload, pass_id FROM consumed_events LIMIT 1`).Scan(&stored, &passID))
	require.JSONEq(t, string(payload), string(stored))
	require.Equal(t, "p-1", passID)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("wellness"),
		postgrescontainer.WithUsername("wellness"),
		postgrescontainer.WithPassword("wellness"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.EnsureSchema(ctx, pool))
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
