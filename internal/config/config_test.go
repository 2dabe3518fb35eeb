package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("postgres:\n  dsn: \"host=db\"\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "ledger-events", cfg.Kafka.Topic)
	assert.Equal(t, "ledger-materializer", cfg.Kafka.GroupID)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.BalanceCacheTTL)
	assert.Equal(t, 100, cfg.Ledger.PollBatch)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Ledger.SyncMaterialize)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("LEDGER_JWT_SECRET", "from-env")

	cfg, err := Parse([]byte(`
postgres:
  dsn: "host=db"
auth:
  jwt_secret: "from-file"
ledger:
  sync_materialize: true
  balance_cache_ttl: 30s
`))
	require.NoError(t, err)

	assert.Equal(t, "host=db password=s3cret", cfg.Postgres.DSN)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Ledger.SyncMaterialize)
	assert.Equal(t, 30*time.Second, cfg.Ledger.BalanceCacheTTL)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	assert.Equal(t, "internal/config/config.yaml", Path("internal/config/config.yaml"))
	t.Setenv("LEDGER_CONFIG", "/etc/ledger.yaml")
	assert.Equal(t, "/etc/ledger.yaml", Path("internal/config/config.yaml"))
}
