package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	sql []string
	err error
}

func (f *fakeExec) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	return pgconn.CommandTag{}, f.err
}

func TestApply(t *testing.T) {
	db := &fakeExec{}
	require.NoError(t, Apply(context.Background(), db))
	require.NotEmpty(t, db.sql)
	for _, table := range []string{"analytics_rollup_15m", "processed_events", "outbox_events", "analytics_refresh_requests"} {
		assert.True(t, strings.Contains(db.sql[0], "create table if not exists "+table), table)
	}
}

func TestApply_WrapsError(t *testing.T) {
	err := Apply(context.Background(), &fakeExec{err: errors.New("syntax")})
	assert.ErrorContains(t, err, "migration 001_init.sql")
}
