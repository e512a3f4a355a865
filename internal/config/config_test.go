package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "optisync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvTTL, EnvRemote, EnvDatabase, EnvTokenSecret} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60*time.Second, cfg.TTL)
	assert.Equal(t, DefaultSubject, cfg.Subject)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
ttl: 30s
remote_url: http://localhost:8080
database: mirror.db
token_secret: s3cret
subject: alice
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		TTL:         30 * time.Second,
		RemoteURL:   "http://localhost:8080",
		Database:    "mirror.db",
		TokenSecret: "s3cret",
		Subject:     "alice",
	}, cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "remote_url: http://api\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, cfg.TTL)
	assert.Equal(t, DefaultSubject, cfg.Subject)
	assert.Equal(t, "http://api", cfg.RemoteURL)
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "ttl: 30s\nremote_url: http://file\n")
	t.Setenv(EnvTTL, "2m")
	t.Setenv(EnvRemote, "http://env")
	t.Setenv(EnvDatabase, "/tmp/env.db")
	t.Setenv(EnvTokenSecret, "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.TTL)
	assert.Equal(t, "http://env", cfg.RemoteURL)
	assert.Equal(t, "/tmp/env.db", cfg.Database)
	assert.Equal(t, "from-env", cfg.TokenSecret)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "tll: 30s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tll")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing file", wantErr: "read config"},
		{name: "bad duration in file", file: "ttl: soon\n", wantErr: "parse config"},
		{name: "bad duration in env", file: "{}", env: map[string]string{EnvTTL: "soon"}, wantErr: EnvTTL},
		{name: "non-positive ttl", file: "ttl: 0s\n", wantErr: "ttl must be positive"},
		{name: "secret without subject", file: "token_secret: x\nsubject: \"\"\n", wantErr: "subject is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "missing.yaml")
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnv_IgnoresEmptyValues(t *testing.T) {
	cfg := Default()
	cfg.RemoteURL = "http://kept"
	env := map[string]string{EnvRemote: ""}

	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, "http://kept", cfg.RemoteURL)
}
