package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0 0 * * * *", cfg.Scheduler.Reconcile)
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 10, cfg.Workflow.OperationTimeoutSeconds)
	assert.Equal(t, "UTC", cfg.SchedulerLocation().String())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: postgres
  host: db.internal
  user: lab
  database: tools
`)
	t.Setenv("DB_HOST", "override-host")
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "override-host", cfg.Database.Host)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres://lab:@override-host:5432/tools?sslmode=disable", cfg.GetDatabaseConnectionString())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"MissingHost", Config{Database: DatabaseConfig{Driver: "postgres", User: "u", Database: "d"}}, "database host is required"},
		{"UnknownDriver", Config{Database: DatabaseConfig{Driver: "sqlite"}}, "unknown database driver"},
		{"ShortSecret", Config{Database: DatabaseConfig{Driver: "memory"}, JWT: JWTConfig{Secret: "short"}}, "at least 32 characters"},
		{"SendgridWithoutKey", Config{Database: DatabaseConfig{Driver: "memory"}, Email: EmailConfig{Provider: "sendgrid"}}, "sendgrid api key"},
		{"BadTimezone", Config{Database: DatabaseConfig{Driver: "memory"}, Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}, "invalid scheduler timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
