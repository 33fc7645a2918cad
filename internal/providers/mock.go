package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// MockProvider is the deterministic in-process provider used by tests
// and local runs without API keys. Generate answers every agent
// operation with well-formed JSON so the full state machine can run
// offline.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	op := strings.ToLower(req.Operation)
	switch {
	case strings.Contains(op, "grade"):
		// Evidence with any word overlap against the question counts
		// as relevant; keeps graded outcomes reproducible.
		relevant := len(req.Context) > 0 && tokenOverlap(req.Prompt, strings.Join(req.Context, " ")) > 0
		b, _ := json.Marshal(map[string]bool{"relevant": relevant})
		return GenerateResponse{Text: string(b)}, info, nil
	case strings.Contains(op, "verify"):
		b, _ := json.Marshal(map[string]bool{"grounded": true, "addresses_question": true})
		return GenerateResponse{Text: string(b)}, info, nil
	case strings.Contains(op, "rewrite"):
		return GenerateResponse{Text: strings.TrimSpace(req.Prompt) + " (restated)"}, info, nil
	case strings.Contains(op, "generate"):
		if len(req.Context) == 0 {
			b, _ := json.Marshal(map[string]any{
				"answer": "", "is_answerable": false, "cited_indices": []int{},
			})
			return GenerateResponse{Text: string(b)}, info, nil
		}
		indices := make([]int, 0, len(req.Context))
		for i := range req.Context {
			indices = append(indices, i+1)
		}
		b, _ := json.Marshal(map[string]any{
			"answer":        "Deterministic answer grounded in the provided evidence [1].",
			"is_answerable": true,
			"cited_indices": indices,
		})
		return GenerateResponse{Text: string(b)}, info, nil
	default:
		return GenerateResponse{Text: "Mock response."}, info, nil
	}
}

func tokenOverlap(a, b string) int {
	seen := map[string]bool{}
	for _, t := range strings.Fields(strings.ToLower(a)) {
		if len(t) > 3 {
			seen[strings.Trim(t, ".,;:?!")] = true
		}
	}
	n := 0
	for _, t := range strings.Fields(strings.ToLower(b)) {
		if seen[strings.Trim(t, ".,;:?!")] {
			n++
		}
	}
	return n
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
	return v
}
