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

package embed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"
)

// RetryConfig controls the retry behavior of the generator.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig matches the pipeline defaults.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Multiplier:     2.0,
}

// Generator wraps a provider with batching, retries and normalization.
// All vectors it returns have unit L2 norm.
type Generator struct {
	provider  Provider
	batchSize int
	retry     RetryConfig
	logger    *slog.Logger
}

// NewGenerator creates a generator. batchSize <= 0 selects a default of 32.
func NewGenerator(provider Provider, batchSize int, logger *slog.Logger) *Generator {
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		provider:  provider,
		batchSize: batchSize,
		retry:     DefaultRetryConfig,
		logger:    logger,
	}
}

// SetRetryConfig overrides retry behavior. Zero values fall back to defaults
// so a partially filled config never produces a busy loop.
func (g *Generator) SetRetryConfig(cfg RetryConfig) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRetryConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultRetryConfig.MaxBackoff
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = DefaultRetryConfig.Multiplier
	}
	g.retry = cfg
}

// EmbedAll embeds all texts, splitting into provider-sized batches. It fails
// only after retries are exhausted on a batch; callers decide whether that
// fails the file or the whole run.
func (g *Generator) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		vectors, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vectors...)
	}

	for _, vec := range out {
		l2Normalize(vec)
	}
	return out, nil
}

func (g *Generator) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	var err error
	for attempt := 0; attempt < g.retry.MaxRetries; attempt++ {
		vectors, err = g.provider.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if !IsRetryable(err) || attempt == g.retry.MaxRetries-1 {
			break
		}
		sleep := backoffWithJitter(g.retry, attempt)
		g.logger.Warn("embed.batch.retry",
			"attempt", attempt+1,
			"sleep_ms", sleep.Milliseconds(),
			"err", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, err
}

// backoffWithJitter returns exponential backoff with full jitter in [0, d].
func backoffWithJitter(cfg RetryConfig, attempt int) time.Duration {
	exp := float64(cfg.InitialBackoff)
	for i := 0; i < attempt; i++ {
		exp *= cfg.Multiplier
	}
	d := time.Duration(exp)
	if d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}
	if d <= 0 {
		return cfg.InitialBackoff
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}
