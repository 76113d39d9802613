// Package embed defines the embedding provider contract and the baseline
// letter-frequency provider.
//
// The engine treats embedding generation as a pluggable capability: any
// implementation of Provider can back the similarity index, whether local
// (LetterFrequency, the build-tagged ONNX provider) or remote. Provider
// failures surface as *ProviderError without corrupting engine state.
package embed

import (
	"context"
	"fmt"
	"unicode"

	"golang.org/x/sync/errgroup"
)

// Provider converts text into fixed-length vectors.
type Provider interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts texts to vectors, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// ProviderError wraps a failure from an embedding provider so callers can
// distinguish provider faults (quota, network, model) from engine faults.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// BatchEmbed runs p.Embed over texts with bounded concurrency, preserving
// input order. The first failure cancels the remaining work.
func BatchEmbed(ctx context.Context, p Provider, texts []string, concurrency int) ([][]float32, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := p.Embed(ctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LetterFrequencyDimensions is the vector size of the baseline provider,
// one slot per ASCII letter.
const LetterFrequencyDimensions = 26

// LetterFrequency is the deterministic baseline provider: a 26-dimensional
// vector of normalized lowercase-letter frequencies. Case-insensitive,
// non-letter characters ignored. The vector sums to 1 when the text contains
// at least one letter and is the zero vector otherwise.
//
// This is a deliberately naive placeholder for development and tests; swap in
// a real model through the Provider interface for production retrieval.
type LetterFrequency struct{}

// NewLetterFrequency creates the baseline provider.
func NewLetterFrequency() *LetterFrequency { return &LetterFrequency{} }

// Embed never fails; it exists to satisfy the Provider contract.
func (*LetterFrequency) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, LetterFrequencyDimensions)
	total := 0
	for _, r := range text {
		r = unicode.ToLower(r)
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
			total++
		}
	}
	if total > 0 {
		for i := range vec {
			vec[i] /= float32(total)
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text sequentially; the computation is too cheap to
// parallelize.
func (l *LetterFrequency) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns 26.
func (*LetterFrequency) Dimensions() int { return LetterFrequencyDimensions }
