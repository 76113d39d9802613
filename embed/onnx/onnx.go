//go:build onnx

// Package onnx provides an embedding provider backed by a local ONNX model
// (all-MiniLM-L6-v2 by default). It satisfies the embed.Provider contract so
// the engine can swap the letter-frequency baseline for real semantic
// vectors without other changes.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/engramkit/engram-go/embed"
)

// Config configures the provider.
type Config struct {
	// ModelPath points at the ONNX model file. Required.
	ModelPath string

	// TokenizerPath points at the HuggingFace tokenizer.json. Required.
	TokenizerPath string

	// LibraryPath points at libonnxruntime; empty uses the system default.
	LibraryPath string

	// Dimensions is the embedding size (default 384 for all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequenceLength caps tokenized input length (default 128).
	MaxSequenceLength int
}

// Provider runs a sentence-transformer model through ONNX Runtime.
// Sessions are not safe for concurrent inference, so calls are serialized.
type Provider struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPieceTokenizer
	dimensions int
	maxSeqLen  int
}

// New creates a provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx: TokenizerPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSequenceLength == 0 {
		cfg.MaxSequenceLength = 128
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, &embed.ProviderError{Provider: "onnx", Err: fmt.Errorf("initialize runtime: %w", err)}
	}

	tokenizer, err := loadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, &embed.ProviderError{Provider: "onnx", Err: fmt.Errorf("load tokenizer: %w", err)}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, &embed.ProviderError{Provider: "onnx", Err: fmt.Errorf("create session: %w", err)}
	}

	return &Provider{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		maxSeqLen:  cfg.MaxSequenceLength,
	}, nil
}

// Embed tokenizes text, runs inference, mean-pools attended tokens, and
// normalizes the result to a unit vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	inputIDs, attentionMask := p.tokenizer.encode(text, p.maxSeqLen)
	tokenTypeIDs := make([]int64, p.maxSeqLen)

	shape := ort.NewShape(1, int64(p.maxSeqLen))
	tensors := make([]ort.Value, 0, 3)
	for _, data := range [][]int64{inputIDs, attentionMask, tokenTypeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			for _, prev := range tensors {
				prev.Destroy()
			}
			return nil, &embed.ProviderError{Provider: "onnx", Err: fmt.Errorf("create tensor: %w", err)}
		}
		tensors = append(tensors, t)
	}
	defer func() {
		for _, t := range tensors {
			t.Destroy()
		}
	}()

	outputs := []ort.Value{nil}
	if err := p.session.Run(tensors, outputs); err != nil {
		return nil, &embed.ProviderError{Provider: "onnx", Err: fmt.Errorf("inference: %w", err)}
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, &embed.ProviderError{Provider: "onnx", Err: fmt.Errorf("unexpected output tensor type")}
	}
	return p.pool(hidden, attentionMask)
}

// pool mean-pools the last hidden state over attended tokens.
func (p *Provider) pool(hidden *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := hidden.GetData()
	shape := hidden.GetShape()

	vec := make([]float32, p.dimensions)
	switch len(shape) {
	case 2: // already pooled: [1, dims]
		if len(data) < p.dimensions {
			return nil, &embed.ProviderError{Provider: "onnx",
				Err: fmt.Errorf("output has %d values, expected %d", len(data), p.dimensions)}
		}
		copy(vec, data[:p.dimensions])
	case 3: // [1, seq, dims]
		seqLen, hiddenSize := int(shape[1]), int(shape[2])
		if hiddenSize != p.dimensions {
			return nil, &embed.ProviderError{Provider: "onnx",
				Err: fmt.Errorf("hidden size %d, expected %d", hiddenSize, p.dimensions)}
		}
		attended := float32(0)
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * hiddenSize
			for j := 0; j < hiddenSize; j++ {
				vec[j] += data[offset+j]
			}
		}
		if attended > 0 {
			for j := range vec {
				vec[j] /= attended
			}
		}
	default:
		return nil, &embed.ProviderError{Provider: "onnx", Err: fmt.Errorf("unexpected output shape %v", shape)}
	}

	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds texts one at a time; the session serializes inference
// anyway.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embed.BatchEmbed(ctx, p, texts, 1)
}

// Dimensions returns the embedding vector size.
func (p *Provider) Dimensions() int { return p.dimensions }

// Close releases the ONNX session.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		if err := p.session.Destroy(); err != nil {
			return err
		}
		p.session = nil
	}
	return nil
}

func normalize(vec []float32) {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
}

// wordPieceTokenizer implements the subset of BERT WordPiece tokenization
// needed for sentence-transformer models.
type wordPieceTokenizer struct {
	vocab    map[string]int
	clsToken int64
	sepToken int64
	unkToken int64
}

func loadTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return &wordPieceTokenizer{
		vocab:    file.Model.Vocab,
		clsToken: 101,
		sepToken: 102,
		unkToken: 100,
	}, nil
}

// encode produces fixed-length input ids and attention mask with [CLS]/[SEP]
// framing, truncating long input.
func (t *wordPieceTokenizer) encode(text string, maxLen int) (ids, mask []int64) {
	tokens := t.tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	ids[0] = t.clsToken
	mask[0] = 1
	for i, tok := range tokens {
		ids[i+1] = tok
		mask[i+1] = 1
	}
	ids[len(tokens)+1] = t.sepToken
	mask[len(tokens)+1] = 1
	return ids, mask
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, piece := range t.split(word) {
			if id, ok := t.vocab[piece]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, t.unkToken)
			}
		}
	}
	return tokens
}

// split greedily matches the longest known subword, with the "##"
// continuation prefix after the first piece.
func (t *wordPieceTokenizer) split(word string) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				pieces = append(pieces, piece)
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
