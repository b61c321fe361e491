package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"storydub/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected at least one free byte, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, ^uint64(0)); result.Passed {
		t.Fatal("expected failure for impossible requirement")
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckAPIKey(t *testing.T) {
	if CheckAPIKey("key", "  ").Passed {
		t.Fatal("blank key should fail")
	}
	result := CheckAPIKey("key", "secret")
	if !result.Passed || result.Detail != "configured" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	cfg := config.Default().LLM
	cfg.BaseURL = srv.URL
	cfg.APIKey = "good-key"
	if result := CheckLLM(context.Background(), cfg); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	cfg.APIKey = "bad-key"
	if result := CheckLLM(context.Background(), cfg); result.Passed {
		t.Fatal("expected failure for bad key")
	}
	cfg.APIKey = ""
	if result := CheckLLM(context.Background(), cfg); result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result for missing key: %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.CacheDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Sarvam.APIKey = "s"
	cfg.LLM.APIKey = "l"
	cfg.Imagen.APIKey = ""
	cfg.YouTube.Enabled = false

	results := RunAll(context.Background(), &cfg)
	if len(results) != 8 {
		t.Fatalf("expected 8 results without publishing, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Imagen API key" {
		t.Fatalf("expected only the imagen key to fail, got %+v", failed)
	}

	cfg.YouTube.Enabled = true
	if results := RunAll(context.Background(), &cfg); len(results) != 9 {
		t.Fatalf("expected youtube token check when publishing, got %d results", len(results))
	}
}
