package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/shiraberu/internal/config"
	"github.com/hyperjump/shiraberu/internal/embedding"
	"github.com/hyperjump/shiraberu/internal/keyword"
	"github.com/hyperjump/shiraberu/internal/models"
	"github.com/hyperjump/shiraberu/internal/storage"
	"github.com/hyperjump/shiraberu/internal/vector"
)

const sampleText = "Kubernetes orchestrates containers across a cluster. " +
	"The scheduler assigns pods to nodes based on resource requests. " +
	"Deployments manage replica sets and support rolling updates. " +
	"Services expose pods behind a stable virtual IP."

// flakyEmbedder fails every call while fail is set.
type flakyEmbedder struct {
	*embedding.MockEmbedder
	fail bool
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedder down")
	}
	return f.MockEmbedder.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embedder down")
	}
	return f.MockEmbedder.EmbedBatch(ctx, texts)
}

type testEnv struct {
	ing       *Ingester
	store     *storage.SQLiteStorage
	index     *vector.FlatIndex
	kw        keyword.Index
	uploadDir string
	indexPath string
}

func newTestEnv(t *testing.T, embedder embedding.Embedder, ingestCfg config.IngestConfig) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	index, err := vector.NewFlatIndex(embedder.Dimensions())
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}

	kw, err := keyword.NewBleveIndex(filepath.Join(dir, "keyword.bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { kw.Close() })

	storageCfg := config.StorageConfig{
		DatabasePath: filepath.Join(dir, "app.db"),
		UploadDir:    filepath.Join(dir, "uploads"),
		IndexPath:    filepath.Join(dir, "index.shvi"),
	}
	return &testEnv{
		ing:       NewIngester(store, embedder, index, kw, storageCfg, ingestCfg),
		store:     store,
		index:     index,
		kw:        kw,
		uploadDir: storageCfg.UploadDir,
		indexPath: storageCfg.IndexPath,
	}
}

func defaultIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		ChunkSize:    120,
		ChunkOverlap: 20,
		MaxFileSize:  1 << 20,
	}
}

func TestIngester_IngestBytes(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(16), defaultIngestConfig())
	ctx := context.Background()

	doc, err := env.ing.IngestBytes(ctx, "cluster_notes.txt", "text/plain", []byte(sampleText))
	if err != nil {
		t.Fatalf("IngestBytes: %v", err)
	}
	if doc.ProcessingStatus != models.StatusCompleted {
		t.Fatalf("status = %q, want %q (error: %s)", doc.ProcessingStatus, models.StatusCompleted, doc.ProcessingError)
	}
	if doc.ChunkCount < 2 {
		t.Errorf("chunk count = %d, want at least 2", doc.ChunkCount)
	}
	if doc.OriginalFilename != "cluster_notes.txt" {
		t.Errorf("original filename = %q", doc.OriginalFilename)
	}
	if !strings.HasSuffix(doc.Filename, "_cluster_notes.txt") || len(doc.Filename) != len("_cluster_notes.txt")+12 {
		t.Errorf("stored filename = %q, want 12-char hash prefix", doc.Filename)
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		t.Errorf("stored blob missing: %v", err)
	}
	if !strings.HasPrefix(doc.FilePath, env.uploadDir) {
		t.Errorf("blob stored at %q, want under %q", doc.FilePath, env.uploadDir)
	}

	chunks, err := env.store.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetChunksByDocumentID: %v", err)
	}
	if len(chunks) != doc.ChunkCount {
		t.Errorf("stored chunks = %d, want %d", len(chunks), doc.ChunkCount)
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if c.ContentHash == "" {
			t.Errorf("chunk %d missing content hash", i)
		}
	}

	if got := env.index.Size(); got != doc.ChunkCount {
		t.Errorf("vector index size = %d, want %d", got, doc.ChunkCount)
	}
	kwCount, err := env.kw.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if int(kwCount) != doc.ChunkCount {
		t.Errorf("keyword index count = %d, want %d", kwCount, doc.ChunkCount)
	}
	if _, err := os.Stat(env.indexPath); err != nil {
		t.Errorf("vector index not persisted: %v", err)
	}
}

func TestIngester_IngestBytes_rejectsOversize(t *testing.T) {
	cfg := defaultIngestConfig()
	cfg.MaxFileSize = 10
	env := newTestEnv(t, embedding.NewMockEmbedder(16), cfg)

	_, err := env.ing.IngestBytes(context.Background(), "big.txt", "text/plain", []byte(sampleText))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("error = %v, want ErrFileTooLarge", err)
	}
	if n, _ := env.store.CountDocuments(context.Background()); n != 0 {
		t.Errorf("document row created for rejected upload")
	}
}

func TestIngester_IngestBytes_rejectsUnknownType(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(16), defaultIngestConfig())

	_, err := env.ing.IngestBytes(context.Background(), "tool.exe", "application/octet-stream", []byte("MZ"))
	if !errors.Is(err, ErrTypeNotAllowed) {
		t.Fatalf("error = %v, want ErrTypeNotAllowed", err)
	}
}

func TestIngester_IngestBytes_honorsAllowedTypes(t *testing.T) {
	cfg := defaultIngestConfig()
	cfg.AllowedTypes = []string{"txt"}
	env := newTestEnv(t, embedding.NewMockEmbedder(16), cfg)

	if _, err := env.ing.IngestBytes(context.Background(), "readme.md", "text/markdown", []byte("# hi")); !errors.Is(err, ErrTypeNotAllowed) {
		t.Fatalf("markdown error = %v, want ErrTypeNotAllowed", err)
	}
	if _, err := env.ing.IngestBytes(context.Background(), "notes.txt", "text/plain", []byte(sampleText)); err != nil {
		t.Fatalf("txt should be allowed: %v", err)
	}
}

func TestIngester_IngestBytes_emptyDocumentFails(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(16), defaultIngestConfig())
	ctx := context.Background()

	doc, err := env.ing.IngestBytes(ctx, "blank.txt", "text/plain", []byte("   \n\t  "))
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("error = %v, want ErrEmptyDocument", err)
	}
	stored, err := env.store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.ProcessingStatus != models.StatusFailed {
		t.Errorf("status = %q, want %q", stored.ProcessingStatus, models.StatusFailed)
	}
	if stored.ProcessingError == "" {
		t.Error("processing error not recorded")
	}
}

func TestIngester_IngestBytes_embedFailureKeepsChunks(t *testing.T) {
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(16), fail: true}
	env := newTestEnv(t, emb, defaultIngestConfig())
	ctx := context.Background()

	doc, err := env.ing.IngestBytes(ctx, "notes.txt", "text/plain", []byte(sampleText))
	if err == nil {
		t.Fatal("expected embed failure")
	}
	stored, err := env.store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.ProcessingStatus != models.StatusFailed {
		t.Errorf("status = %q, want %q", stored.ProcessingStatus, models.StatusFailed)
	}
	if !strings.Contains(stored.ProcessingError, "embed") {
		t.Errorf("processing error = %q, want embed stage", stored.ProcessingError)
	}

	// Chunk rows survive for Reprocess; nothing reached the indexes.
	chunks, err := env.store.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetChunksByDocumentID: %v", err)
	}
	if len(chunks) == 0 {
		t.Error("chunks not kept after embed failure")
	}
	if env.index.Size() != 0 {
		t.Errorf("vector index size = %d, want 0", env.index.Size())
	}
	if n, _ := env.kw.DocCount(); n != 0 {
		t.Errorf("keyword index count = %d, want 0", n)
	}
}

func TestIngester_Reprocess(t *testing.T) {
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(16), fail: true}
	env := newTestEnv(t, emb, defaultIngestConfig())
	ctx := context.Background()

	doc, err := env.ing.IngestBytes(ctx, "notes.txt", "text/plain", []byte(sampleText))
	if err == nil {
		t.Fatal("expected embed failure")
	}

	emb.fail = false
	redone, err := env.ing.Reprocess(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if redone.ProcessingStatus != models.StatusCompleted {
		t.Fatalf("status = %q, want %q (error: %s)", redone.ProcessingStatus, models.StatusCompleted, redone.ProcessingError)
	}
	if redone.ProcessingError != "" {
		t.Errorf("processing error not cleared: %q", redone.ProcessingError)
	}

	chunks, err := env.store.GetChunksByDocumentID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetChunksByDocumentID: %v", err)
	}
	if len(chunks) != redone.ChunkCount {
		t.Errorf("stored chunks = %d, want %d (stale chunks left behind?)", len(chunks), redone.ChunkCount)
	}
	if env.index.Size() != redone.ChunkCount {
		t.Errorf("vector index size = %d, want %d", env.index.Size(), redone.ChunkCount)
	}
}

func TestIngester_Delete(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(16), defaultIngestConfig())
	ctx := context.Background()

	doc, err := env.ing.IngestBytes(ctx, "notes.txt", "text/plain", []byte(sampleText))
	if err != nil {
		t.Fatalf("IngestBytes: %v", err)
	}

	if err := env.ing.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := env.store.GetDocument(ctx, doc.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetDocument after delete = %v, want ErrNotFound", err)
	}
	if n, _ := env.store.CountChunks(ctx); n != 0 {
		t.Errorf("chunk rows remain: %d", n)
	}
	if env.index.Size() != 0 {
		t.Errorf("vector index size = %d, want 0", env.index.Size())
	}
	if n, _ := env.kw.DocCount(); n != 0 {
		t.Errorf("keyword index count = %d, want 0", n)
	}
	if _, err := os.Stat(doc.FilePath); !os.IsNotExist(err) {
		t.Errorf("stored blob not removed: %v", err)
	}
}

func TestIngester_Delete_missingDocument(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(16), defaultIngestConfig())

	err := env.ing.Delete(context.Background(), "no-such-id")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestIngester_IngestFile(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(16), defaultIngestConfig())
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(path, []byte(sampleText), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}

	doc, err := env.ing.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if doc.ProcessingStatus != models.StatusCompleted {
		t.Fatalf("status = %q (error: %s)", doc.ProcessingStatus, doc.ProcessingError)
	}
	abs, _ := filepath.Abs(path)
	if doc.FilePath != abs {
		t.Errorf("file path = %q, want source path %q", doc.FilePath, abs)
	}

	// Unchanged file is skipped, returning the existing document.
	again, err := env.ing.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile (unchanged): %v", err)
	}
	if again.ID != doc.ID {
		t.Errorf("unchanged file re-ingested: id %q -> %q", doc.ID, again.ID)
	}
	if n, _ := env.store.CountDocuments(ctx); n != 1 {
		t.Errorf("document count = %d, want 1", n)
	}

	// A modified file replaces its previous document.
	if err := os.WriteFile(path, []byte(sampleText+" Ingress routes external traffic."), 0644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	replaced, err := env.ing.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("IngestFile (modified): %v", err)
	}
	if replaced.ID == doc.ID {
		t.Error("modified file kept the old document id")
	}
	if n, _ := env.store.CountDocuments(ctx); n != 1 {
		t.Errorf("document count after replace = %d, want 1", n)
	}
	if _, err := env.store.GetDocument(ctx, doc.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("old document still present: %v", err)
	}

	// Source files are never removed on delete.
	if err := env.ing.Delete(ctx, replaced.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("source file removed by delete: %v", err)
	}
}

func TestIngester_DeleteByPath(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(16), defaultIngestConfig())
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(path, []byte(sampleText), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ing.IngestFile(ctx, path); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	if err := env.ing.DeleteByPath(ctx, path); err != nil {
		t.Fatalf("DeleteByPath: %v", err)
	}
	if n, _ := env.store.CountDocuments(ctx); n != 0 {
		t.Errorf("document count = %d, want 0", n)
	}
	if err := env.ing.DeleteByPath(ctx, path); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second DeleteByPath = %v, want ErrNotFound", err)
	}
}

func TestExtensionAllowed(t *testing.T) {
	allowed := []string{"txt", ".MD", "pdf"}
	cases := []struct {
		ext  string
		want bool
	}{
		{".txt", true},
		{".md", true},
		{".PDF", true},
		{".docx", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := extensionAllowed(tc.ext, allowed); got != tc.want {
			t.Errorf("extensionAllowed(%q) = %v, want %v", tc.ext, got, tc.want)
		}
	}
}
