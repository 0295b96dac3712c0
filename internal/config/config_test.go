package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1_000_000.0, cfg.Cleansing.DefaultAnomalyThreshold)
	assert.False(t, cfg.KPI.AutoCalculate)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no env vars",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "info", cfg.Logging.Level)
			},
		},
		{
			name: "environment overrides",
			env: map[string]string{
				"KPIW_SERVER_PORT":                         "9090",
				"KPIW_LOGGING_LEVEL":                       "DEBUG",
				"KPIW_CLEANSING_DEFAULT_ANOMALY_THRESHOLD": "500",
				"KPIW_CLEANSING_ANOMALY_THRESHOLDS":        "Revenue:5000000,downtime_hours:744",
				"KPIW_KPI_AUTO_CALCULATE":                  "true",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, 500.0, cfg.Cleansing.DefaultAnomalyThreshold)
				assert.Equal(t, map[string]float64{"revenue": 5000000, "downtime_hours": 744}, cfg.Cleansing.AnomalyThresholds)
				assert.True(t, cfg.KPI.AutoCalculate)
			},
		},
		{
			name: "file values below env values",
			env: map[string]string{
				"KPIW_SERVER_PORT": "7070",
			},
			file: "server:\n  port: 6060\ndatabase:\n  dsn: file.db\nkpi:\n  definitions_file: metrics.yaml\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, "file.db", cfg.Database.DSN)
				assert.Equal(t, "metrics.yaml", cfg.KPI.DefinitionsFile)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			},
		},
		{
			name:    "invalid port number",
			env:     map[string]string{"KPIW_SERVER_PORT": "99999"},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			env:     map[string]string{"KPIW_LOGGING_LEVEL": "verbose"},
			wantErr: true,
		},
		{
			name:    "non-positive threshold",
			env:     map[string]string{"KPIW_CLEANSING_ANOMALY_THRESHOLDS": "revenue:0"},
			wantErr: true,
		},
		{
			name:    "unknown trace exporter",
			env:     map[string]string{"KPIW_TELEMETRY_TRACE_EXPORTER": "jaeger"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.file != "" {
				path := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0644))
				t.Setenv("KPIW_CONFIG_FILE", path)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestGetPaths(t *testing.T) {
	base := t.TempDir()
	paths, err := GetPaths(PathsConfig{BaseDir: base, ExportsDir: "/abs/exports"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "data"), paths.DataDir)
	assert.Equal(t, "/abs/exports", paths.ExportsDir)
	assert.Equal(t, filepath.Join(base, "logs"), paths.LogsDir)
	assert.Equal(t, filepath.Join("/abs/exports", "issues.xlsx"), paths.GetExportPath("issues.xlsx"))
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	paths, err := GetPaths(PathsConfig{BaseDir: base})
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	assert.True(t, FileExists(paths.DataDir))
	assert.True(t, FileExists(paths.ExportsDir))
	assert.True(t, FileExists(paths.LogsDir))
}

func TestDatabaseConfig_FilePath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{DefaultDatabaseDSN, "data/warehouse.db"},
		{"file:/var/lib/kpi.db?_pragma=foreign_keys(1)", "/var/lib/kpi.db"},
		{":memory:", ""},
		{"file:test?mode=memory&cache=shared", ""},
		{"plain.db", "plain.db"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, DatabaseConfig{DSN: tt.dsn}.FilePath())
		})
	}
}
