package config

import (
	"errors"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "azure" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "  " },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "empty embedder model",
			mutate:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedderModel,
		},
		{
			name:    "chunk size too small",
			mutate:  func(c *Config) { c.ChunkSize = 10 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "overlap not below chunk size",
			mutate:  func(c *Config) { c.ChunkOverlap = c.ChunkSize },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Config) { c.ChunkOverlap = -1 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "zero top-k",
			mutate:  func(c *Config) { c.TopK = 0 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "min score above one",
			mutate:  func(c *Config) { c.MinScore = 1.5 },
			wantErr: ErrInvalidMinScore,
		},
		{
			name:    "tiny token budget",
			mutate:  func(c *Config) { c.TokenBudget = 10 },
			wantErr: ErrInvalidTokenBudget,
		},
		{
			name:    "unknown index backend",
			mutate:  func(c *Config) { c.IndexBackend = "chroma" },
			wantErr: ErrInvalidIndexBackend,
		},
		{
			name: "postgres backend needs host",
			mutate: func(c *Config) {
				c.IndexBackend = IndexBackendPostgres
				c.PostgresHost = ""
			},
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name: "postgres port out of range",
			mutate: func(c *Config) {
				c.IndexBackend = IndexBackendPostgres
				c.PostgresPort = 70000
			},
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name: "postgres bad sslmode",
			mutate: func(c *Config) {
				c.IndexBackend = IndexBackendPostgres
				c.PostgresSSLMode = "maybe"
			},
			wantErr: ErrInvalidPostgresSSLMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want errors.Is(%v)", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("nil config error = %v, want ErrConfigNil", err)
	}
}
