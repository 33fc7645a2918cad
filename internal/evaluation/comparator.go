package evaluation

import (
	"context"

	"dossier/internal/models"
	"dossier/internal/providers"
)

// Metric weights: semantic similarity dominates, the judge verdict
// carries the qualitative share.
const (
	weightSemantic = 0.4
	weightKeyword  = 0.2
	weightNgram    = 0.1
	weightJudge    = 0.3
)

// Comparator scores one AI answer against the human ground truth. The
// embedding half and the judge half fail independently: a provider
// outage on either side leaves its term at zero and the comparison
// still completes.
type Comparator struct {
	embedder providers.EmbeddingProvider
	judge    *Judge
	embedDim int
}

func NewComparator(embedder providers.EmbeddingProvider, judge *Judge, embedDim int) *Comparator {
	return &Comparator{embedder: embedder, judge: judge, embedDim: embedDim}
}

func (c *Comparator) Compare(ctx context.Context, question, aiAnswer, humanAnswer string) models.EvaluationMetrics {
	semantic := c.semanticSimilarity(ctx, aiAnswer, humanAnswer)
	keyword := keywordOverlap(aiAnswer, humanAnswer)
	ngram := ngramOverlap(humanAnswer, aiAnswer)
	verdict := c.judge.Evaluate(ctx, question, aiAnswer, humanAnswer)

	combined := semantic*weightSemantic + keyword*weightKeyword +
		ngram*weightNgram + verdict.OverallScore*weightJudge

	return models.EvaluationMetrics{
		SemanticSimilarity: semantic,
		KeywordOverlap:     keyword,
		NgramOverlap:       ngram,
		JudgeScore:         verdict.OverallScore,
		CombinedScore:      clamp01(combined),
		Explanation:        verdict.Explanation,
	}
}

func (c *Comparator) semanticSimilarity(ctx context.Context, aiAnswer, humanAnswer string) float64 {
	vectors, _, err := c.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "embed_evaluation",
		Inputs:    []string{aiAnswer, humanAnswer},
		Dimension: c.embedDim,
	})
	if err != nil || len(vectors) < 2 {
		return 0
	}
	return clamp01(cosineSimilarity(vectors[0], vectors[1]))
}

// BuildReport aggregates a project's evaluations. Averages cover the
// evaluated subset only.
func BuildReport(projectID string, evaluations []models.Evaluation, totalQuestions int) models.EvaluationReport {
	report := models.EvaluationReport{
		ProjectID:          projectID,
		TotalQuestions:     totalQuestions,
		EvaluatedQuestions: len(evaluations),
		Evaluations:        evaluations,
	}
	if len(evaluations) == 0 {
		report.Evaluations = []models.Evaluation{}
		return report
	}
	for _, e := range evaluations {
		report.AverageSemanticSimilarity += e.Metrics.SemanticSimilarity
		report.AverageKeywordOverlap += e.Metrics.KeywordOverlap
		report.AverageCombinedScore += e.Metrics.CombinedScore
	}
	n := float64(len(evaluations))
	report.AverageSemanticSimilarity /= n
	report.AverageKeywordOverlap /= n
	report.AverageCombinedScore /= n
	return report
}
