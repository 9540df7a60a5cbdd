package config

// DefaultAllowedTypes lists the file extensions accepted for upload.
var DefaultAllowedTypes = []string{
	".pdf", ".docx", ".txt", ".md", ".eml",
	".xlsx", ".pptx", ".ods", ".odp", ".rtf", ".odt",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".shiraberu/shiraberu.db"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = ".shiraberu/uploads"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = ".shiraberu/index/vectors.idx"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = ".shiraberu/index/keyword.bleve"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-004"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-2.0-flash-exp"
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.Ingest.AllowedTypes == nil {
		cfg.Ingest.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 100
	}
	if cfg.Search.DefaultThreshold == 0 {
		cfg.Search.DefaultThreshold = 0.7
	}
}
