// Package config loads the YAML application configuration.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvDataDir   = "SEMSEARCH_DATA_DIR"
	EnvDocsDir   = "SEMSEARCH_DOCS_DIR"
	EnvOllamaURL = "SEMSEARCH_OLLAMA_URL"
)

// DocumentsConfig points at the corpus.
type DocumentsConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions,omitempty"`
}

// StoreConfig selects the vector store implementation.
type StoreConfig struct {
	Type    string `yaml:"type"`
	DataDir string `yaml:"data_dir"`
}

// OllamaConfig holds connection details for a local Ollama server.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string        `yaml:"type"`
	Dimension   int           `yaml:"dimension"`
	MaxTokens   int           `yaml:"max_tokens"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
}

// Timeout returns the query embedding timeout, zero when unset.
func (c EmbedderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// TesseractConfig configures the tesseract CLI recognizer.
type TesseractConfig struct {
	Binary   string `yaml:"binary"`
	Language string `yaml:"language"`
}

// OCRServiceConfig configures the HTTP OCR service recognizer. An empty URL
// selects the recognizer's default. When Script is set and the service is
// not already up, the script is started with Interpreter.
type OCRServiceConfig struct {
	URL         string `yaml:"url,omitempty"`
	Script      string `yaml:"script,omitempty"`
	Interpreter string `yaml:"interpreter,omitempty"`
}

// OCRConfig selects the recognizer and bounds its input rasters.
type OCRConfig struct {
	Type      string            `yaml:"type"`
	MaxWidth  int               `yaml:"max_width"`
	MaxHeight int               `yaml:"max_height"`
	Tesseract *TesseractConfig  `yaml:"tesseract,omitempty"`
	Service   *OCRServiceConfig `yaml:"service,omitempty"`
}

// PDFToPPMConfig configures the pdftoppm rasterizer.
type PDFToPPMConfig struct {
	Binary string `yaml:"binary"`
}

// RenderConfig selects the PDF page rasterizer.
type RenderConfig struct {
	Type     string          `yaml:"type"`
	PDFToPPM *PDFToPPMConfig `yaml:"pdftoppm,omitempty"`
}

// IndexConfig tunes the indexing pass. Policy "persisted" (the default)
// reuses a store built from an unchanged corpus; "reindex" appends a full
// copy of the corpus on every run, so repeated CLI invocations pile up
// duplicate records.
type IndexConfig struct {
	Policy        string `yaml:"policy"`
	Workers       int    `yaml:"workers"`
	MinChunkChars int    `yaml:"min_chunk_chars"`
}

// SearchConfig tunes query answering.
type SearchConfig struct {
	TopK           int `yaml:"top_k"`
	MaxAnswerChars int `yaml:"max_answer_chars"`
}

// ServerConfig configures the local HTTP API. Browser pages may only call
// it from AllowedOrigins; none are allowed by default.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// LogConfig sets the log level (debug, info, warn, error).
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Documents DocumentsConfig `yaml:"documents"`
	Store     StoreConfig     `yaml:"store"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	OCR       OCRConfig       `yaml:"ocr"`
	Render    RenderConfig    `yaml:"render"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from path. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./semsearch.yaml first, then <UserConfigDir>/semsearch/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "semsearch.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "semsearch", "config.yaml"), nil
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".semsearch"
	}
	return filepath.Join(dir, "semsearch")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Documents: DocumentsConfig{Dir: "./documents"},
		Store:     StoreConfig{Type: "sqlite"},
		Embedder:  EmbedderConfig{Type: "hashing"},
		OCR:       OCRConfig{Type: "none"},
		Render:    RenderConfig{Type: "none"},
		Index:     IndexConfig{Policy: "persisted"},
		Log:       LogConfig{Level: "info"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Documents.Dir == "" {
		cfg.Documents.Dir = "./documents"
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "sqlite"
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = defaultDataDir()
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.MaxTokens == 0 {
		cfg.Embedder.MaxTokens = 256
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		if cfg.Embedder.Ollama.URL == "" {
			cfg.Embedder.Ollama.URL = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "nomic-embed-text"
		}
	}
	if cfg.OCR.Type == "" {
		cfg.OCR.Type = "none"
	}
	if cfg.OCR.MaxWidth == 0 {
		cfg.OCR.MaxWidth = 600
	}
	if cfg.OCR.MaxHeight == 0 {
		cfg.OCR.MaxHeight = 600
	}
	switch cfg.OCR.Type {
	case "tesseract":
		if cfg.OCR.Tesseract == nil {
			cfg.OCR.Tesseract = &TesseractConfig{}
		}
		if cfg.OCR.Tesseract.Binary == "" {
			cfg.OCR.Tesseract.Binary = "tesseract"
		}
		if cfg.OCR.Tesseract.Language == "" {
			cfg.OCR.Tesseract.Language = "eng"
		}
	case "service":
		if cfg.OCR.Service == nil {
			cfg.OCR.Service = &OCRServiceConfig{}
		}
		if cfg.OCR.Service.Script != "" && cfg.OCR.Service.Interpreter == "" {
			cfg.OCR.Service.Interpreter = "python3"
		}
	}
	if cfg.Render.Type == "" {
		cfg.Render.Type = "none"
	}
	if cfg.Render.Type == "pdftoppm" {
		if cfg.Render.PDFToPPM == nil {
			cfg.Render.PDFToPPM = &PDFToPPMConfig{}
		}
		if cfg.Render.PDFToPPM.Binary == "" {
			cfg.Render.PDFToPPM.Binary = "pdftoppm"
		}
	}
	if cfg.Index.Policy == "" {
		cfg.Index.Policy = "persisted"
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = 1
	}
	if cfg.Index.MinChunkChars == 0 {
		cfg.Index.MinChunkChars = 50
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 3
	}
	if cfg.Search.MaxAnswerChars == 0 {
		cfg.Search.MaxAnswerChars = 500
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv(EnvDocsDir); v != "" {
		cfg.Documents.Dir = v
	}
	if v := os.Getenv(EnvOllamaURL); v != "" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{Model: "nomic-embed-text"}
		}
		cfg.Embedder.Ollama.URL = v
	}
}
