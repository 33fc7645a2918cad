package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/internal/models"
	"dossier/internal/providers"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0, 2}, []float32{1, 0, 2}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestKeywordOverlap(t *testing.T) {
	assert.Equal(t, 1.0, keywordOverlap("", ""))
	assert.Equal(t, 0.0, keywordOverlap("encryption at rest", ""))
	assert.Equal(t, 0.0, keywordOverlap("alpha beta", "gamma delta"))
	// {data, is, encrypted} vs {data, encrypted}: intersection 2, union 3.
	assert.InDelta(t, 2.0/3.0, keywordOverlap("Data is encrypted.", "data encrypted"), 1e-9)
}

func TestNgramOverlap(t *testing.T) {
	assert.Equal(t, 0.0, ngramOverlap("anything", ""))
	assert.InDelta(t, 1.0, ngramOverlap("data is encrypted at rest", "data is encrypted at rest"), 1e-9)
	// Single-token candidate has no bigrams; unigram precision stands in.
	assert.InDelta(t, 1.0, ngramOverlap("data is encrypted", "data"), 1e-9)
	assert.Equal(t, 0.0, ngramOverlap("alpha beta", "gamma delta"))
}

type verdictLLM struct {
	text string
	err  error
}

func (v verdictLLM) Generate(context.Context, providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	return providers.GenerateResponse{Text: v.text}, providers.ProviderInfo{Name: "scripted"}, v.err
}

func TestJudgeParsesFencedVerdict(t *testing.T) {
	j := NewJudge(verdictLLM{text: "```json\n{\"faithfulness_score\": 0.9, \"relevance_score\": 0.8, \"conciseness_score\": 1.4, \"overall_score\": 0.85, \"explanation\": \"aligned\"}\n```"})
	v := j.Evaluate(context.Background(), "Is data encrypted?", "Yes, AES-256.", "Data is encrypted at rest.")
	assert.InDelta(t, 0.9, v.FaithfulnessScore, 1e-9)
	assert.Equal(t, 1.0, v.ConcisenessScore, "scores clamp to [0,1]")
	assert.InDelta(t, 0.85, v.OverallScore, 1e-9)
	assert.Equal(t, "aligned", v.Explanation)
}

func TestJudgeDegradesToZeroVerdict(t *testing.T) {
	for name, llm := range map[string]verdictLLM{
		"provider error": {err: errors.New("rate limited")},
		"prose response": {text: "I cannot score this."},
	} {
		v := NewJudge(llm).Evaluate(context.Background(), "q", "a", "b")
		assert.Zero(t, v.OverallScore, name)
		assert.Contains(t, v.Explanation, "evaluation failed", name)
	}
}

type fixedEmbedder struct {
	vectors [][]float32
	err     error
}

func (f fixedEmbedder) Embed(context.Context, providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	return f.vectors, providers.ProviderInfo{Name: "fixed"}, f.err
}

func TestCompareCombinesWeightedMetrics(t *testing.T) {
	comp := NewComparator(
		fixedEmbedder{vectors: [][]float32{{1, 0}, {1, 0}}},
		NewJudge(verdictLLM{text: `{"faithfulness_score": 1, "relevance_score": 1, "conciseness_score": 1, "overall_score": 1, "explanation": "identical"}`}),
		2,
	)
	m := comp.Compare(context.Background(), "Is data encrypted?", "data is encrypted", "data is encrypted")
	assert.InDelta(t, 1.0, m.SemanticSimilarity, 1e-9)
	assert.InDelta(t, 1.0, m.KeywordOverlap, 1e-9)
	assert.InDelta(t, 1.0, m.NgramOverlap, 1e-9)
	assert.InDelta(t, 1.0, m.JudgeScore, 1e-9)
	assert.InDelta(t, 1.0, m.CombinedScore, 1e-9)
	assert.Equal(t, "identical", m.Explanation)
}

func TestCompareSurvivesEmbedderOutage(t *testing.T) {
	comp := NewComparator(
		fixedEmbedder{err: errors.New("embedding service down")},
		NewJudge(verdictLLM{text: `{"overall_score": 0.5, "explanation": "partial"}`}),
		2,
	)
	m := comp.Compare(context.Background(), "q", "alpha beta", "alpha beta")
	assert.Zero(t, m.SemanticSimilarity)
	assert.InDelta(t, 1.0, m.KeywordOverlap, 1e-9)
	// 0*0.4 + 1*0.2 + 1*0.1 + 0.5*0.3
	assert.InDelta(t, 0.45, m.CombinedScore, 1e-9)
}

func TestBuildReportAverages(t *testing.T) {
	evals := []models.Evaluation{
		{Metrics: models.EvaluationMetrics{SemanticSimilarity: 0.8, KeywordOverlap: 0.6, CombinedScore: 0.7}},
		{Metrics: models.EvaluationMetrics{SemanticSimilarity: 0.4, KeywordOverlap: 0.2, CombinedScore: 0.3}},
	}
	report := BuildReport("p1", evals, 5)
	require.Equal(t, 5, report.TotalQuestions)
	require.Equal(t, 2, report.EvaluatedQuestions)
	assert.InDelta(t, 0.6, report.AverageSemanticSimilarity, 1e-9)
	assert.InDelta(t, 0.4, report.AverageKeywordOverlap, 1e-9)
	assert.InDelta(t, 0.5, report.AverageCombinedScore, 1e-9)
}

func TestBuildReportEmpty(t *testing.T) {
	report := BuildReport("p1", nil, 3)
	assert.Equal(t, 3, report.TotalQuestions)
	assert.Zero(t, report.EvaluatedQuestions)
	assert.Zero(t, report.AverageCombinedScore)
	assert.NotNil(t, report.Evaluations)
}
