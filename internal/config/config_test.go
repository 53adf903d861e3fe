package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/hms")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "hms", cfg.MongoDatabase)
	assert.Equal(t, "5 0 * * *", cfg.ReportCron)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, time.Second, cfg.FeedInterval())
	assert.True(t, cfg.IsDev())
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("FEED_INTERVAL_MS", "250")
	t.Setenv("CORS_ORIGIN", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, int32(25), cfg.DBMaxConns)
	assert.Equal(t, 250*time.Millisecond, cfg.FeedInterval())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Config{JWTSecret: "short", BcryptCost: 2, ReportCron: "not a cron"}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"DB_DSN", "MONGO_URI", "JWT_SECRET", "BCRYPT_COST", "REPORT_CRON"} {
		assert.Contains(t, err.Error(), want)
	}
}
