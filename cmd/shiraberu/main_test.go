package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/shiraberu/internal/models"
)

func TestQueryArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"backup strategy", "-mode", "keyword"},
			expected: []string{"-mode", "keyword", "backup strategy"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-mode", "keyword", "backup strategy"},
			expected: []string{"-mode", "keyword", "backup strategy"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"backup strategy"},
			expected: []string{"backup strategy"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-k", "5"},
			expected: []string{"-k", "5", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := queryArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("queryArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQueryText(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"failover"}, "failover"},
		{"multiple words", []string{"backup", "strategy"}, "backup strategy"},
		{"quoted phrase", []string{"backup strategy"}, "backup strategy"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQueryText(tt.args)
			if got != tt.expected {
				t.Errorf("buildQueryText(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSplitCommaList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{"a, b , c", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"solo", []string{"solo"}},
		{"", nil},
		{" , ", nil},
	}
	for _, tt := range tests {
		got := splitCommaList(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCommaList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestQueryViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req models.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Query != "failover" || req.Mode != "keyword" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(models.QueryResponse{
			Query:        req.Query,
			Mode:         req.Mode,
			TotalResults: 1,
			Results:      []*models.QueryResult{{ChunkID: "c1", Content: "failover notes", Rank: 1}},
		})
	}))
	defer srv.Close()

	resp, err := queryViaHTTP(srv.URL, &models.QueryRequest{Query: "failover", Mode: "keyword"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 1 || resp.Results[0].ChunkID != "c1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestQueryViaHTTP_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"embedding service unavailable, try again later"}`)
	}))
	defer srv.Close()

	_, err := queryViaHTTP(srv.URL, &models.QueryRequest{Query: "x"})
	if err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestUploadViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		if header.Filename != "notes.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		json.NewEncoder(w).Encode(models.UploadResponse{
			Message:       "Document processed successfully with 2 chunks",
			DocumentID:    "doc-1",
			Filename:      "abcdef123456_notes.txt",
			ChunksCreated: 2,
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("some text"), 0644); err != nil {
		t.Fatal(err)
	}
	out, err := uploadViaHTTP(srv.URL, path)
	if err != nil {
		t.Fatal(err)
	}
	if out.DocumentID != "doc-1" || out.ChunksCreated != 2 {
		t.Errorf("response = %+v", out)
	}
}

func TestStatusViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stats" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"documents":{"total":3},"chunks":{"total":12}}`)
	}))
	defer srv.Close()

	raw, err := statusViaHTTP(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	var s statsResponse
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatal(err)
	}
	if s.Documents.Total != 3 || s.Chunks.Total != 12 {
		t.Errorf("stats = %+v", s)
	}
}
