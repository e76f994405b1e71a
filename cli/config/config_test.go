package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "chronicle", cfg.Database.Schema)
	assert.Equal(t, "events", cfg.Database.Table)
	assert.Equal(t, CodecJSON, cfg.Database.Codec)
	assert.Equal(t, PublishNone, cfg.Publish.Kind)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		wantErrors int
	}{
		{
			name:       "valid default config with postgres URL",
			modify:     func(c *Config) { c.Database.URL = "postgres://localhost/db" },
			wantErrors: 0,
		},
		{
			name:       "valid memory driver",
			modify:     func(c *Config) { c.Database.Driver = DriverMemory },
			wantErrors: 0,
		},
		{
			name:       "valid sqlite driver",
			modify:     func(c *Config) { c.Database.Driver = DriverSQLite; c.Database.URL = "events.db" },
			wantErrors: 0,
		},
		{
			name: "msgpack codec",
			modify: func(c *Config) {
				c.Database.Driver = DriverMemory
				c.Database.Codec = CodecMsgpack
			},
			wantErrors: 0,
		},
		{
			name: "unknown codec",
			modify: func(c *Config) {
				c.Database.Driver = DriverMemory
				c.Database.Codec = "protobuf"
			},
			wantErrors: 1,
		},
		{
			name:       "missing driver",
			modify:     func(c *Config) { c.Database.Driver = "" },
			wantErrors: 1,
		},
		{
			name:       "invalid driver",
			modify:     func(c *Config) { c.Database.Driver = "mysql" },
			wantErrors: 1,
		},
		{
			name:       "pq without URL",
			modify:     func(c *Config) { c.Database.Driver = DriverPQ },
			wantErrors: 1,
		},
		{
			name: "kafka without brokers or topic",
			modify: func(c *Config) {
				c.Database.Driver = DriverMemory
				c.Publish.Kind = PublishKafka
			},
			wantErrors: 2,
		},
		{
			name: "webhook without URL",
			modify: func(c *Config) {
				c.Database.Driver = DriverMemory
				c.Publish.Kind = PublishWebhook
			},
			wantErrors: 1,
		},
		{
			name: "unknown publisher and log settings",
			modify: func(c *Config) {
				c.Database.Driver = DriverMemory
				c.Publish.Kind = "rabbit"
				c.Log.Level = "trace"
				c.Log.Format = "xml"
			},
			wantErrors: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			errors := cfg.Validate()
			assert.Equal(t, tt.wantErrors, len(errors), "errors: %v", errors)
		})
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := DefaultConfig()
	cfg.Database.Driver = DriverSQLite
	cfg.Database.URL = "/var/lib/chronicle/events.db"
	cfg.Publish.Kind = PublishKafka
	cfg.Publish.KafkaBrokers = []string{"k1:9092", "k2:9092"}
	cfg.Publish.KafkaTopic = "records"
	require.NoError(t, cfg.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFile_KeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "events", cfg.Database.Table)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("database: [\n"), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	cfg := DefaultConfig()
	cfg.Database.Table = "journal"
	require.NoError(t, cfg.SaveFile(filepath.Join(root, ConfigFileName)))

	dir, found, err := FindConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, root, dir)
	assert.Equal(t, "journal", found.Database.Table)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHRONICLE_DATABASE_URL", "postgres://env/db")
	t.Setenv("CHRONICLE_PUBLISH_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("CHRONICLE_TRACE", "true")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Publish.KafkaBrokers)
	assert.True(t, cfg.Telemetry.Trace)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver, "unset variables keep their value")
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("CHRONICLE_TRACE", "maybe")

	err := DefaultConfig().ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestResolve(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0644))

		cfg, used, err := Resolve(path, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, path, used)
		assert.Equal(t, DriverMemory, cfg.Database.Driver)
	})

	t.Run("explicit path missing", func(t *testing.T) {
		_, _, err := Resolve(filepath.Join(t.TempDir(), "nope.yaml"), "")
		assert.Error(t, err)
	})

	t.Run("search upwards", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, DefaultConfig().SaveFile(filepath.Join(root, ConfigFileName)))

		_, used, err := Resolve("", root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, ConfigFileName), used)
	})

	t.Run("defaults with env override", func(t *testing.T) {
		t.Setenv("CHRONICLE_DATABASE_DRIVER", "memory")

		cfg, used, err := Resolve("", t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, used)
		assert.Equal(t, DriverMemory, cfg.Database.Driver)
	})
}
