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
	"math"

	"log/slog"
)

const mockDimensions = 256

// MockProvider generates deterministic embeddings from a text hash. Useful
// for tests and offline runs; the vectors carry no semantic meaning but are
// stable across processes.
type MockProvider struct {
	dimensions int
	logger     *slog.Logger
}

// NewMockProvider creates a mock provider with the given dimensionality.
func NewMockProvider(dimensions int, logger *slog.Logger) *MockProvider {
	if dimensions <= 0 {
		dimensions = mockDimensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MockProvider{dimensions: dimensions, logger: logger}
}

// Model identifies the mock provider in logs and metadata.
func (m *MockProvider) Model() string { return "mock" }

// Embed produces one unit vector per input text.
func (m *MockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = m.vector(text)
	}
	return out, nil
}

func (m *MockProvider) vector(text string) []float32 {
	hash := djb2(text)
	vec := make([]float32, m.dimensions)
	for i := range vec {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		vec[i] = val*2.0 - 1.0
	}
	l2Normalize(vec)
	return vec
}

func djb2(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}

// l2Normalize scales vec to unit length in place. Zero vectors are left alone.
func l2Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
