package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr())
	}
	if cfg.Chunking.Size != 1000 || cfg.Chunking.Overlap != 150 || cfg.Upload.MaxBytes != 50<<20 {
		t.Fatalf("unexpected ingestion defaults %+v %+v", cfg.Chunking, cfg.Upload)
	}
	if cfg.LLM.EmbeddingDimension != 1000 || cfg.Index.TopK != 5 || cfg.LLM.MaxContextMessage != 10 {
		t.Fatalf("unexpected retrieval defaults %+v", cfg.LLM)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	content := `
[app]
port = 9090

[database]
driver = "postgres"
host = "db"
port = 5432
user = "docqa"
password = "pw"
db = "docqa"
params = "sslmode=disable"

[index]
backend = "pgvector"
top_k = 8
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "7070")
	t.Setenv("CAPTION_PROVIDER", "ONNX")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != 7070 {
		t.Fatalf("env must win over file, port = %d", cfg.App.Port)
	}
	if cfg.Index.Backend != "pgvector" || cfg.Index.TopK != 8 || cfg.Caption.Provider != "onnx" {
		t.Fatalf("unexpected %+v %+v", cfg.Index, cfg.Caption)
	}
	want := "host=db port=5432 user=docqa password=pw dbname=docqa sslmode=disable"
	if cfg.DSN() != want {
		t.Fatalf("DSN = %q, want %q", cfg.DSN(), want)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":        func(c *Config) { c.Database.Driver = "oracle" },
		"pgvector":      func(c *Config) { c.Index.Backend = "pgvector" },
		"caption":       func(c *Config) { c.Caption.Provider = "ocr" },
		"overlap":       func(c *Config) { c.Chunking.Overlap = c.Chunking.Size },
		"dimension":     func(c *Config) { c.LLM.EmbeddingDimension = 0 },
		"index backend": func(c *Config) { c.Index.Backend = "faiss" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
