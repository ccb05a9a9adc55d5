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

// Package embed turns text into vectors via pluggable embedding providers.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net"

	"log/slog"

	"github.com/codeatlas-dev/codeatlas/internal/config"
)

// Provider generates embeddings for batches of texts. The returned slice has
// the same length and order as the input.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// ProviderError is a typed failure from an embedding backend. StatusCode is
// zero for transport-level failures.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s embed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s embed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s embed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable classifies embedding failures: rate limits, server errors and
// transport problems are worth another attempt; everything else is not.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		if perr.StatusCode == 429 || perr.StatusCode >= 500 {
			return true
		}
		if perr.StatusCode != 0 {
			return false
		}
		var nerr net.Error
		if errors.As(perr.Err, &nerr) {
			return true
		}
		// Transport failure with no HTTP status: connection refused, reset, EOF.
		return perr.Err != nil
	}
	return false
}

// NewProvider builds a provider from configuration.
func NewProvider(cfg config.EmbeddingConfig, logger *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Timeout()), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout()), nil
	case "mock":
		return NewMockProvider(mockDimensions, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
