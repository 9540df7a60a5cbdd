// Package main is the Shiraberu CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/hyperjump/shiraberu/internal/cli"
	"github.com/hyperjump/shiraberu/internal/config"
	"github.com/hyperjump/shiraberu/internal/embedding"
	"github.com/hyperjump/shiraberu/internal/gemini"
	"github.com/hyperjump/shiraberu/internal/generation"
	"github.com/hyperjump/shiraberu/internal/ingest"
	"github.com/hyperjump/shiraberu/internal/keyword"
	"github.com/hyperjump/shiraberu/internal/models"
	"github.com/hyperjump/shiraberu/internal/retrieval"
	"github.com/hyperjump/shiraberu/internal/server"
	"github.com/hyperjump/shiraberu/internal/storage"
	"github.com/hyperjump/shiraberu/internal/vector"
	"github.com/hyperjump/shiraberu/internal/watcher"
	"github.com/hyperjump/shiraberu/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shiraberu/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory; if that exists it is used, so
// "shiraberu server" from the project dir picks up the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "upload":
		runUpload()
	case "query":
		runQuery()
	case "documents":
		runDocuments()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("shiraberu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	host := fs.String("host", "", "bind address (overrides config)")
	port := fs.Int("port", 0, "listen port (overrides config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ingester := ingest.NewIngester(
		components.Store, components.Embedder, components.Index, components.KeywordIndex,
		cfg.Storage, cfg.Ingest, ingest.WithLogger(logger))

	engineOpts := []retrieval.Option{retrieval.WithLogger(logger)}
	if components.Generator != nil {
		engineOpts = append(engineOpts, retrieval.WithGenerator(components.Generator))
	}
	engine := retrieval.NewEngine(
		components.Store, components.Embedder, components.Index, components.KeywordIndex,
		cfg.Search, engineOpts...)

	var watchSvc *watcher.Watcher
	watchCancel := func() {}
	if cfg.Watch.Enabled && cfg.Watch.Dir != "" {
		watchSvc = watcher.NewWatcher(
			cfg.Watch.Dir,
			cfg.Ingest.AllowedTypes,
			func(path string) {
				if _, err := ingester.IngestFile(context.Background(), path); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				err := ingester.DeleteByPath(context.Background(), path)
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
		var watchCtx context.Context
		watchCtx, watchCancel = context.WithCancel(context.Background())
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}
	defer watchCancel()

	srv := server.NewServer(
		engine,
		ingester,
		components.Store,
		components.Index,
		components.KeywordIndex,
		components.Generator,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	// Final save after the server has drained, so the image carries every
	// completed ingest.
	if cfg.Storage.IndexPath != "" {
		if err := components.Index.Save(cfg.Storage.IndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.IndexPath), zap.Error(err))
		}
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shiraberu upload [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	out, err := uploadViaHTTP(*serverURL, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded: %s\n", out.Filename)
	fmt.Printf("Document ID: %s\n", out.DocumentID)
	fmt.Printf("Chunks: %d\n", out.ChunksCreated)
}

func uploadViaHTTP(serverURL, path string) (*models.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := http.Post(serverURL+"/api/v1/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: shiraberu query [flags] <text>\n\n")
	fmt.Fprintf(fs.Output(), "Query text is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  shiraberu query kubernetes scheduling
  shiraberu query "kubernetes scheduling"          # same as above
  shiraberu query -mode keyword replication slots
  shiraberu query -mode hybrid -k 10 backup strategy
  shiraberu query -docs id1,id2 deployment steps   # scope to two documents
  shiraberu query -explain -json failover
`)
}

// buildQueryText joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// queryArgsReorder moves any flags (and their values) that appear after the
// query text to the front of the slice so that flag.Parse() sees them. The
// flag package stops at the first non-flag argument, so
// "shiraberu query failover -mode keyword" would otherwise ignore -mode.
func queryArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// splitCommaList splits a comma-separated flag value, trimming blanks.
func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runQuery() {
	queryArgs := queryArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("query", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	k := fs.Int("k", 0, "number of results (0 = server default)")
	threshold := fs.Float64("threshold", -1, "similarity threshold in [0, 1] (-1 = server default)")
	mode := fs.String("mode", "", "query mode: semantic, keyword, or hybrid (default semantic)")
	docs := fs.String("docs", "", "comma-separated document IDs to scope the query")
	explain := fs.Bool("explain", false, "include an LLM explanation and related queries")
	jsonOut := fs.Bool("json", false, "print the raw JSON response")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(queryArgs)

	queryText := buildQueryText(fs.Args())
	if queryText == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}

	req := &models.QueryRequest{
		Query:              queryText,
		MaxResults:         *k,
		Mode:               *mode,
		IncludeExplanation: *explain,
	}
	if *threshold >= 0 {
		t := *threshold
		req.SimilarityThreshold = &t
	}
	if *docs != "" {
		req.DocumentIDs = splitCommaList(*docs)
	}

	response, err := queryViaHTTP(*serverURL, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	format := cli.OutputText
	if *jsonOut {
		format = cli.OutputJSON
	}
	if err := cli.WriteQueryResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func queryViaHTTP(serverURL string, req *models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runDocuments() {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	limit := fs.Int("limit", 100, "maximum documents to list")
	offset := fs.Int("offset", 0, "listing offset")
	jsonOut := fs.Bool("json", false, "print the raw JSON response")
	_ = fs.Parse(os.Args[2:])

	params := url.Values{}
	params.Set("limit", strconv.Itoa(*limit))
	params.Set("offset", strconv.Itoa(*offset))
	resp, err := http.Get(*serverURL + "/api/v1/documents?" + params.Encode())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "List failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var list models.DocumentListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}

	format := cli.OutputText
	if *jsonOut {
		format = cli.OutputJSON
	}
	if err := cli.WriteDocumentList(os.Stdout, &list, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shiraberu delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	req, err := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/documents/"+url.PathEscape(docID), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// statsResponse mirrors the GET /api/v1/stats payload.
type statsResponse struct {
	Documents struct {
		Total int64 `json:"total"`
	} `json:"documents"`
	Chunks struct {
		Total int64 `json:"total"`
	} `json:"chunks"`
	VectorStore struct {
		TotalVectors   int   `json:"total_vectors"`
		Dimensions     int   `json:"dimensions"`
		IndexSizeBytes int64 `json:"index_size_bytes"`
	} `json:"vector_store"`
	Keyword struct {
		Docs uint64 `json:"docs"`
	} `json:"keyword"`
	System struct {
		Version          string   `json:"version"`
		MaxFileSize      int64    `json:"max_file_size"`
		AllowedFileTypes []string `json:"allowed_file_types"`
	} `json:"system"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	jsonOut := fs.Bool("json", false, "print the raw JSON response")
	_ = fs.Parse(os.Args[2:])

	raw, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(buf.String())
		return
	}

	var s statsResponse
	if err := json.Unmarshal(raw, &s); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("documents:      %d\n", s.Documents.Total)
	fmt.Printf("chunks:         %d\n", s.Chunks.Total)
	fmt.Printf("vectors:        %d (%d dimensions)\n", s.VectorStore.TotalVectors, s.VectorStore.Dimensions)
	if s.VectorStore.IndexSizeBytes > 0 {
		fmt.Printf("index size:     %s\n", humanize.Bytes(uint64(s.VectorStore.IndexSizeBytes)))
	}
	fmt.Printf("keyword docs:   %d\n", s.Keyword.Docs)
	fmt.Println()
	fmt.Printf("version:        %s\n", s.System.Version)
	fmt.Printf("max file size:  %s\n", humanize.Bytes(uint64(s.System.MaxFileSize)))
	fmt.Printf("allowed types:  %s\n", strings.Join(s.System.AllowedFileTypes, ", "))
}

func statusViaHTTP(serverURL string) ([]byte, error) {
	resp, err := http.Get(serverURL + "/api/v1/stats")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

// components holds the initialized services behind the server.
type components struct {
	Store        *storage.SQLiteStorage
	Embedder     embedding.Embedder
	Index        *vector.FlatIndex
	KeywordIndex keyword.Index
	Generator    *generation.Client
}

func (c *components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	index, err := vector.NewFlatIndex(cfg.Embedding.Dimensions,
		vector.WithLogger(logger),
		vector.WithResolver(func(ctx context.Context, chunkID string) (string, bool) {
			chunk, err := store.GetChunk(ctx, chunkID)
			if err != nil {
				return "", false
			}
			return chunk.DocumentID, true
		}))
	if err != nil {
		_ = embedder.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if err := index.Load(cfg.Storage.IndexPath); err != nil {
		// A corrupt image is not fatal: reprocessing rebuilds vectors.
		logger.Warn("vector index load failed, starting empty",
			zap.String("path", cfg.Storage.IndexPath), zap.Error(err))
	}
	logger.Info("vector index ready",
		zap.Int("vectors", index.Size()),
		zap.Int("dimensions", index.Dimensions()))

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		_ = embedder.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	// Generation is optional: without an API key, summaries, explanations,
	// and query suggestions are disabled.
	var generator *generation.Client
	if key := config.GeminiAPIKey(); key != "" {
		api, err := gemini.NewClient(key, gemini.WithLogger(logger))
		if err == nil {
			generator = generation.NewClient(api, cfg.Generation.Model, logger)
		}
	} else {
		logger.Info("GEMINI_API_KEY not set, generation features disabled")
	}

	return &components{
		Store:        store,
		Embedder:     embedder,
		Index:        index,
		KeywordIndex: keywordIndex,
		Generator:    generator,
	}, nil
}

func printUsage() {
	fmt.Println(`shiraberu - document ingestion and retrieval server

Usage:
  shiraberu server [flags]            Start the HTTP server
  shiraberu upload [flags] <file>     Upload a document to a running server
  shiraberu query [flags] <text>      Query the document corpus
  shiraberu documents [flags]         List documents
  shiraberu delete [flags] <id>       Delete a document
  shiraberu status [flags]            Show corpus and index statistics
  shiraberu version                   Show version
  shiraberu help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shiraberu/config.yaml)
  --host string      Bind address (overrides config)
  --port int         Listen port (overrides config)
  --debug            Enable debug logging

Query Flags:
  --server string     Server URL (default: http://localhost:8000)
  --k int             Number of results (default: server default)
  --threshold float   Similarity threshold in [0, 1]
  --mode string       semantic, keyword, or hybrid (default: semantic)
  --docs string       Comma-separated document IDs to scope the query
  --explain           Include an LLM explanation and related queries
  --json              Print the raw JSON response

Upload/Documents/Delete/Status Flags:
  --server string    Server URL (default: http://localhost:8000)
  --json             Print the raw JSON response (documents, status)

Examples:
  shiraberu server
  shiraberu server --port 9000 --debug
  shiraberu upload report.pdf
  shiraberu query kubernetes scheduling
  shiraberu query -mode hybrid -k 10 "backup strategy"
  shiraberu documents --json
  shiraberu delete 6a1f1c2e-...
  shiraberu status`)
}
