package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProperty_InvalidValuesFallBackToDefaults checks that non-positive
// numeric settings are replaced by their defaults.
func TestProperty_InvalidValuesFallBackToDefaults(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("non-positive intervals fall back to defaults", prop.ForAll(
		func(v int) bool {
			cfg := &Config{
				Server: ServerConfig{Port: v},
				Source: SourceConfig{Timeout: v},
				Queue:  QueueConfig{TaskTimeout: v},
				Jobs:   JobsConfig{RetrainInterval: v, RefreshInterval: v},
			}
			validateAndApplyDefaults(cfg)
			return cfg.Server.Port == DefaultPort &&
				cfg.Source.Timeout == DefaultSourceTimeout &&
				cfg.Queue.TaskTimeout == DefaultTaskTimeout &&
				cfg.Jobs.RetrainInterval == DefaultRetrainInterval &&
				cfg.Jobs.RefreshInterval == DefaultRefreshInterval
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("positive values are kept", prop.ForAll(
		func(v int) bool {
			cfg := &Config{
				Source: SourceConfig{Timeout: v},
				Jobs:   JobsConfig{RetrainInterval: v, RefreshInterval: v},
			}
			validateAndApplyDefaults(cfg)
			return cfg.Source.Timeout == v && cfg.Jobs.RetrainInterval == v && cfg.Jobs.RefreshInterval == v
		},
		gen.IntRange(1, 1000000),
	))

	properties.Property("queue concurrency is always one", prop.ForAll(
		func(v int) bool {
			cfg := &Config{Queue: QueueConfig{Concurrency: v}}
			validateAndApplyDefaults(cfg)
			return cfg.Queue.Concurrency == 1
		},
		gen.IntRange(-10, 64),
	))

	properties.TestingRun(t)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, DefaultURLTemplate, cfg.Source.URLTemplate)
	assert.Equal(t, DefaultArtifactDir, cfg.Training.ArtifactDir)
	assert.Equal(t, DefaultModelName, cfg.Registry.ModelName)
	assert.Equal(t, "models:/minecraft-model/Production", cfg.Registry.ServeURI)
}

func TestParse_ServeURIFollowsModelName(t *testing.T) {
	cfg, err := Parse([]byte("registry:\n  model_name: lobby\n"))
	require.NoError(t, err)
	assert.Equal(t, "models:/lobby/Production", cfg.Registry.ServeURI)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  api_key: secret
mysql:
  host: db
  port: 3306
  user: loadcast
  password: pw
  database: loadcast
source:
  dir: /data
  periods: [1-8-2021, 2-8-2021]
jobs:
  retrain_enabled: true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, "/data", cfg.Source.Dir)
	assert.Equal(t, []string{"1-8-2021", "2-8-2021"}, cfg.Source.Periods)
	assert.True(t, cfg.Jobs.RetrainEnabled)
	assert.Equal(t, "loadcast:pw@tcp(db:3306)/loadcast?charset=utf8mb4&parseTime=True&loc=UTC", cfg.MySQL.DSN())
	assert.Equal(t, DefaultMaxOpenConns, cfg.MySQL.MaxOpenConns)
	assert.Equal(t, DefaultMaxIdleConns, cfg.MySQL.MaxIdleConns)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("server: [unclosed"))
	assert.Error(t, err)
}

func TestParse_ConnectionPool(t *testing.T) {
	cfg, err := Parse([]byte("mysql:\n  max_open_conns: 1\n  max_idle_conns: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MySQL.MaxOpenConns)
	assert.Equal(t, 1, cfg.MySQL.MaxIdleConns, "idle connections never exceed open ones")

	cfg, err = Parse([]byte("mysql:\n  max_open_conns: 20\n  max_idle_conns: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MySQL.MaxIdleConns)
}

func TestInit_UsesConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0644))
	t.Setenv("CONFIG_PATH", path)

	require.NoError(t, Init())
	assert.Equal(t, 7070, GlobalConfig.Server.Port)
}
