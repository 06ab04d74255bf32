package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	check.NoError(t, cfg.Validate())
	check.False(t, cfg.UsesPostgres())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dutch.toml")
	assert.NoError(t, os.WriteFile(path, []byte(`
mode = "server"
log_level = "debug"

[program]
max_skew = "30s"
replay_ttl = "5m"

[postgres]
dsn = "postgres://u:p@db/dutch"

[node_key]
private_key = "0x01"

[server]
port = 9000
api_key = "from-file"
`), 0o600))

	t.Setenv("DUTCH_SERVER_API_KEY", "from-env")
	t.Setenv("DUTCH_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("DUTCH_LEDGER_AIRDROP_CAP_LAMPORTS", "42")
	t.Setenv("DUTCH_ARCHIVE_RETENTION", "48h")

	cfg, err := Load(path)
	assert.NoError(t, err)
	check.Equal(t, "server", cfg.Mode)
	check.Equal(t, "debug", cfg.LogLevel)
	check.Equal(t, 30*time.Second, cfg.Program.MaxSkew.Duration)
	check.Equal(t, 9000, cfg.Server.Port)
	check.Equal(t, "from-env", cfg.Server.APIKey)
	check.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	check.Equal(t, uint64(42), cfg.Ledger.AirdropCapLamports)
	check.Equal(t, 48*time.Hour, cfg.Archive.Retention.Duration)
	// untouched sections keep their defaults
	check.Equal(t, uint64(6960), cfg.Program.LamportsPerByte)
	check.True(t, cfg.UsesPostgres())
	check.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	check.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.LogLevel = "loud"
	cfg.Program.ID = "0x1234"
	cfg.Program.ReplayTTL.Duration = time.Second
	cfg.NodeKey.EncryptedKeyPath = "/keys/node.json"
	cfg.Postgres.PoolMinConns = 50

	err := cfg.Validate()
	assert.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"log_level",
		"program: id",
		"replay_ttl",
		"node_key: password",
		"pool_min_conns",
		"archive: s3.enabled",
	} {
		check.True(t, strings.Contains(msg, want))
	}
}

func TestServerModeNeedsKeys(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	err := cfg.Validate()
	assert.Error(t, err)
	check.True(t, strings.Contains(err.Error(), "node_key"))
	check.True(t, strings.Contains(err.Error(), "api_key"))

	cfg.NodeKey.PrivateKey = "0x01"
	cfg.Ledger.Devnet = false
	check.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.NodeKey.PrivateKey = "secret"
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	check.Equal(t, "***", out.NodeKey.PrivateKey)
	check.Equal(t, "***", out.Postgres.Password)
	check.Equal(t, "***", out.Server.APIKey)
	check.Equal(t, "", out.Redis.Password)
	check.Equal(t, "secret", cfg.NodeKey.PrivateKey)

	out.Server.CORSOrigins[0] = "mutated"
	check.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
