package providers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"dossier/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("openai:primary | groq |mock")
	require.Len(t, refs, 3)
	assert.Equal(t, "openai", refs[0].Name)
	assert.Equal(t, "primary", refs[0].KeyAlias)
	assert.Equal(t, "groq", refs[1].Name)
	assert.Equal(t, "mock", refs[2].Name)

	refs = ParseProviderList("")
	require.Len(t, refs, 1)
	assert.Equal(t, "mock", refs[0].Name)
}

func TestPreferredOrderMockLast(t *testing.T) {
	m, err := NewManager(config.Config{LLMProviders: "mock|groq", EmbedProviders: "mock", EmbedDim: 8})
	require.NoError(t, err)
	order := m.PreferredLLMOrder()
	require.Len(t, order, 2)
	_, ref := m.LLMProviderByIndex(order[0])
	assert.Equal(t, "groq", ref.Name)
}

func TestMockEmbedDeterministic(t *testing.T) {
	p := NewMockProvider(16)
	a, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"encryption at rest"}, Dimension: 16})
	require.NoError(t, err)
	b, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"encryption at rest"}, Dimension: 16})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 1)
	assert.Len(t, a[0], 16)
}

func TestProviderCallTimeoutConfigured(t *testing.T) {
	p := NewOpenAIProvider("primary", 15*time.Second)
	assert.Equal(t, 15*time.Second, p.client.Timeout)
	g := NewGroqProvider("primary", 15*time.Second)
	assert.Equal(t, 15*time.Second, g.client.Timeout)

	// Zero falls back to the stock sixty seconds.
	assert.Equal(t, 60*time.Second, NewOpenAIProvider("primary", 0).client.Timeout)
	assert.Equal(t, 60*time.Second, NewGroqProvider("primary", 0).client.Timeout)
}

// Cosine scores downstream assume unit-length mock vectors.
func TestMockEmbedUnitNorm(t *testing.T) {
	p := NewMockProvider(32)
	vectors, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"encryption at rest", "x"}, Dimension: 32})
	require.NoError(t, err)
	for _, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
	}
}

func TestMockGenerateShapes(t *testing.T) {
	p := NewMockProvider(8)

	resp, _, err := p.Generate(context.Background(), GenerateRequest{
		Operation: "generate_answer",
		Prompt:    "Is customer data encrypted at rest?",
		Context:   []string{"All customer data is encrypted at rest with AES-256."},
		JSONMode:  true,
	})
	require.NoError(t, err)
	var gen struct {
		Answer       string `json:"answer"`
		IsAnswerable bool   `json:"is_answerable"`
		CitedIndices []int  `json:"cited_indices"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &gen))
	assert.True(t, gen.IsAnswerable)
	assert.Equal(t, []int{1}, gen.CitedIndices)

	resp, _, err = p.Generate(context.Background(), GenerateRequest{
		Operation: "generate_answer", Prompt: "anything", JSONMode: true,
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &gen))
	assert.False(t, gen.IsAnswerable)

	resp, _, err = p.Generate(context.Background(), GenerateRequest{
		Operation: "grade_evidence",
		Prompt:    "encryption at rest",
		Context:   []string{"data is encrypted at rest"},
		JSONMode:  true,
	})
	require.NoError(t, err)
	var grade struct {
		Relevant bool `json:"relevant"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &grade))
	assert.True(t, grade.Relevant)
}

type flakyProvider struct {
	err   error
	calls int
}

func (f *flakyProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	f.calls++
	if f.err != nil {
		return GenerateResponse{}, ProviderInfo{Name: "flaky"}, f.err
	}
	return GenerateResponse{Text: "ok"}, ProviderInfo{Name: "flaky"}, nil
}

func TestFailoverSkipsRateLimitedProvider(t *testing.T) {
	flaky := &flakyProvider{err: errors.New("429 rate limit exceeded")}
	m := &Manager{
		llmProviders: []NamedLLMProvider{
			{Ref: ProviderRef{Raw: "flaky", Name: "flaky"}, Provider: flaky},
			{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(8)},
		},
	}
	f := NewFailover(m, 15*time.Minute)

	resp, info, err := f.Generate(context.Background(), GenerateRequest{Operation: "rewrite_question", Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "mock", info.Name)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, 1, flaky.calls)

	// Second call within the cooldown window never touches the benched
	// provider.
	_, _, err = f.Generate(context.Background(), GenerateRequest{Operation: "rewrite_question", Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, 1, flaky.calls)
}

func TestFailoverStopsOnPermanentError(t *testing.T) {
	flaky := &flakyProvider{err: errors.New("model not found")}
	m := &Manager{
		llmProviders: []NamedLLMProvider{
			{Ref: ProviderRef{Raw: "flaky", Name: "flaky"}, Provider: flaky},
			{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(8)},
		},
	}
	f := NewFailover(m, time.Minute)
	_, _, err := f.Generate(context.Background(), GenerateRequest{Operation: "rewrite_question", Prompt: "q"})
	require.Error(t, err)
	assert.Equal(t, 1, flaky.calls)
}
