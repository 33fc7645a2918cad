package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dossier/internal/providers"
)

const opJudge = "judge_answer"

// Verdict is the judge's structured assessment, every score in [0,1].
type Verdict struct {
	FaithfulnessScore float64 `json:"faithfulness_score"`
	RelevanceScore    float64 `json:"relevance_score"`
	ConcisenessScore  float64 `json:"conciseness_score"`
	OverallScore      float64 `json:"overall_score"`
	Explanation       string  `json:"explanation"`
}

// Judge scores an AI answer against the human reference with an LLM.
// A failed or unparseable call degrades to a zero verdict rather than
// failing the evaluation; the numeric metrics still stand on their own.
type Judge struct {
	llm providers.LLMProvider
}

func NewJudge(llm providers.LLMProvider) *Judge {
	return &Judge{llm: llm}
}

func (j *Judge) Evaluate(ctx context.Context, question, aiAnswer, humanAnswer string) Verdict {
	resp, _, err := j.llm.Generate(ctx, providers.GenerateRequest{
		Operation: opJudge,
		Prompt:    judgePrompt(question, aiAnswer, humanAnswer),
		JSONMode:  true,
	})
	if err != nil {
		return Verdict{Explanation: fmt.Sprintf("evaluation failed: %v", err)}
	}
	var v Verdict
	if err := json.Unmarshal(extractJSON(resp.Text), &v); err != nil {
		return Verdict{Explanation: fmt.Sprintf("evaluation failed: unreadable verdict: %v", err)}
	}
	v.FaithfulnessScore = clamp01(v.FaithfulnessScore)
	v.RelevanceScore = clamp01(v.RelevanceScore)
	v.ConcisenessScore = clamp01(v.ConcisenessScore)
	v.OverallScore = clamp01(v.OverallScore)
	return v
}

func judgePrompt(question, aiAnswer, humanAnswer string) string {
	return fmt.Sprintf(`You are an expert evaluator for a due diligence questionnaire system. Compare an AI-generated answer with a human-provided ground truth answer for the given question.
Criteria:
1. Faithfulness: how well the AI answer aligns with the factual content of the ground truth.
2. Relevance: how well the AI answer addresses the core question.
3. Conciseness: whether the answer is direct without losing essential information.
Reply with a JSON object:
{"faithfulness_score": 0.0, "relevance_score": 0.0, "conciseness_score": 0.0, "overall_score": 0.0, "explanation": "..."}
Every score is between 0.0 and 1.0.
Question: %s
AI Answer: %s
Ground Truth Answer: %s`, question, aiAnswer, humanAnswer)
}

// extractJSON tolerates providers wrapping the object in prose or code
// fences.
func extractJSON(text string) []byte {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		return []byte(text[start : end+1])
	}
	return []byte(text)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
