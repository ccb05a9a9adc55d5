// Copyright 2026 CodeAtlas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the codeatlas project configuration.
//
// Configuration lives in .codeatlas/project.yaml at the repository root.
// Environment variables override file values for credentials and endpoints
// so secrets never need to be committed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level project configuration.
type Config struct {
	// Repository is the unique name used as the metadata key and the
	// vector-store repository filter.
	Repository string `yaml:"repository"`

	// CloneURL is the git remote URL. Empty for local-only repositories.
	CloneURL string `yaml:"clone_url,omitempty"`

	Indexing  IndexingConfig  `yaml:"indexing"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Graph     GraphConfig     `yaml:"graph"`
}

// IndexingConfig controls file selection and the incremental-vs-full decision.
type IndexingConfig struct {
	// Extensions is the list of file extensions to index (without dots).
	Extensions []string `yaml:"extensions,omitempty"`

	// Exclude is a list of glob patterns to skip (e.g. "node_modules/**").
	Exclude []string `yaml:"exclude,omitempty"`

	// MaxFileSizeBytes skips files larger than this. 0 means the default.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes,omitempty"`

	// ChangeThreshold is the number of changed files above which an
	// incremental update falls back to a full re-index.
	ChangeThreshold int `yaml:"change_threshold,omitempty"`

	// ChunkSizeBytes bounds the size of a single embedding chunk.
	ChunkSizeBytes int `yaml:"chunk_size_bytes,omitempty"`

	// ParseTimeout is the per-file parse guardrail in seconds.
	ParseTimeoutSeconds int `yaml:"parse_timeout_seconds,omitempty"`

	// ParseWorkers and EmbedWorkers bound pipeline parallelism.
	ParseWorkers int `yaml:"parse_workers,omitempty"`
	EmbedWorkers int `yaml:"embed_workers,omitempty"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "ollama", "openai", "mock".
	Provider string `yaml:"provider"`

	// Model is the provider-specific embedding model name.
	Model string `yaml:"model,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey is usually supplied via environment, not the file.
	APIKey string `yaml:"api_key,omitempty"`

	// BatchSize is the maximum texts per embedding request.
	BatchSize int `yaml:"batch_size,omitempty"`

	// MaxRetries bounds retry attempts on transient failures.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	// Dimensions is the embedding vector size. The vector store is created
	// with this dimensionality and rejects mismatched vectors.
	Dimensions int `yaml:"dimensions,omitempty"`
}

// Dims returns the configured embedding dimensionality, defaulting per
// provider when unset.
func (c EmbeddingConfig) Dims() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	if c.Provider == "mock" {
		return 256
	}
	return 768
}

// Timeout returns the per-request HTTP timeout as a duration.
func (c EmbeddingConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GraphConfig locates the graph database.
type GraphConfig struct {
	// Path is the on-disk database directory for the embedded backend.
	// Empty means <state dir>/graph.
	Path string `yaml:"path,omitempty"`

	// Host, Port, Username, Password and Database are reserved for
	// server-backed adapters. The embedded Kuzu backend ignores them.
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// DefaultExtensions is the indexing extension list used when the config
// file does not specify one.
var DefaultExtensions = []string{
	"ts", "tsx", "js", "jsx", "cs",
	"md", "markdown", "txt", "pdf", "docx",
}

// DefaultExcludes are glob patterns always worth skipping.
var DefaultExcludes = []string{
	"node_modules/**",
	"vendor/**",
	"dist/**",
	"build/**",
	".git/**",
	"*.min.js",
}

// Default returns a Config populated with production defaults.
func Default() Config {
	return Config{
		Indexing: IndexingConfig{
			Extensions:          append([]string(nil), DefaultExtensions...),
			Exclude:             append([]string(nil), DefaultExcludes...),
			MaxFileSizeBytes:    2 * 1024 * 1024,
			ChangeThreshold:     500,
			ChunkSizeBytes:      8192,
			ParseTimeoutSeconds: 30,
			ParseWorkers:        4,
			EmbedWorkers:        4,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			Model:          "nomic-embed-text",
			BaseURL:        "http://localhost:11434",
			BatchSize:      32,
			MaxRetries:     3,
			TimeoutSeconds: 60,
			Dimensions:     768,
		},
	}
}

// Dir returns the codeatlas config directory for a repository root.
func Dir(repoRoot string) string {
	return filepath.Join(repoRoot, ".codeatlas")
}

// Path returns the project.yaml path for a repository root.
func Path(repoRoot string) string {
	return filepath.Join(Dir(repoRoot), "project.yaml")
}

// Load reads the config file at path, applies defaults for unset fields,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables onto the loaded config.
func (c *Config) applyEnv() {
	if v := os.Getenv("OLLAMA_HOST"); v != "" && c.Embedding.Provider == "ollama" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_EMBED_MODEL"); v != "" && c.Embedding.Provider == "ollama" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_BASE"); v != "" && c.Embedding.Provider == "openai" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("CODEATLAS_GRAPH_PATH"); v != "" {
		c.Graph.Path = v
	}
	if v := os.Getenv("CODEATLAS_GRAPH_HOST"); v != "" {
		c.Graph.Host = v
	}
	if v := os.Getenv("CODEATLAS_GRAPH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Graph.Port = p
		}
	}
	if v := os.Getenv("CODEATLAS_GRAPH_PASSWORD"); v != "" {
		c.Graph.Password = v
	}
	if v := os.Getenv("CODEATLAS_CHANGE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.ChangeThreshold = n
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Repository == "" {
		return fmt.Errorf("config: repository name is required")
	}
	switch c.Embedding.Provider {
	case "ollama", "openai", "mock":
	case "":
		return fmt.Errorf("config: embedding.provider is required")
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Indexing.ChangeThreshold < 0 {
		return fmt.Errorf("config: indexing.change_threshold must be >= 0")
	}
	if c.Indexing.ChunkSizeBytes < 0 {
		return fmt.Errorf("config: indexing.chunk_size_bytes must be >= 0")
	}
	return nil
}
