package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"ADDR", "DATABASE_URL", "JWT_SECRET", "QR_TTL_SECONDS", "QR_BRANCH_ID",
	"QR_BRANCH_NAME", "QR_PURPOSE", "SCAN_WINDOW_MS", "API_BASE_URL", "LOG_LEVEL",
	"ENABLE_SEED",
}

// clearEnv blanks every key for the test; getenv treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFrom("", "")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, time.Hour, cfg.QRTTL())
	assert.Equal(t, 3*time.Second, cfg.ScanWindow())
}

func TestLoadFrom_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gymdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
qr_ttl_seconds: 600
qr_branch_id: 3
qr_branch_name: Downtown
log_level: debug
`), 0o600))

	t.Setenv("ADDR", ":7070")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := LoadFrom(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr, "env wins over yaml")
	assert.Equal(t, 10*time.Minute, cfg.QRTTL())
	assert.Equal(t, int64(3), cfg.QRBranchID)
	assert.Equal(t, "Downtown", cfg.QRBranchName)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadFrom_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("QR_BRANCH_NAME")
	t.Cleanup(func() { os.Unsetenv("QR_BRANCH_NAME") })

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("QR_BRANCH_NAME=Riverside\nADDR=:1111\n"), 0o600))

	cfg, err := LoadFrom("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "Riverside", cfg.QRBranchName)
	// ADDR is already present (empty) in the process, so .env does not replace it.
	assert.Equal(t, ":8080", cfg.Addr)
}

func TestLoadFrom_MissingDotEnvIsFine(t *testing.T) {
	clearEnv(t)
	_, err := LoadFrom("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad purpose", map[string]string{"QR_PURPOSE": "door"}, "QRPurpose: oneof"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWTSecret: min"},
		{"non-numeric ttl", map[string]string{"QR_TTL_SECONDS": "soon"}, "QR_TTL_SECONDS"},
		{"zero window", map[string]string{"SCAN_WINDOW_MS": "0"}, "ScanWindowMS: gt"},
		{"bad base url", map[string]string{"API_BASE_URL": "not a url"}, "APIBaseURL: url"},
		{"bad seed flag", map[string]string{"ENABLE_SEED": "sometimes"}, "ENABLE_SEED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom("", "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFrom_MissingYAML(t *testing.T) {
	clearEnv(t)
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
}

func TestLoadFrom_EnableSeed(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFrom("", "")
	require.NoError(t, err)
	assert.False(t, cfg.EnableSeed)

	t.Setenv("ENABLE_SEED", "true")
	cfg, err = LoadFrom("", "")
	require.NoError(t, err)
	assert.True(t, cfg.EnableSeed)
}
