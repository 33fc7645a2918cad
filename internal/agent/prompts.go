package agent

import (
	"fmt"
	"strings"
)

// FallbackAnswer is the fixed text stored for unanswerable questions.
const FallbackAnswer = "I'm sorry, I couldn't find any relevant information to answer this question."

const (
	opGrade    = "grade_evidence"
	opGenerate = "generate_answer"
	opVerify   = "verify_answer"
	opRewrite  = "rewrite_question"
)

func gradePrompt(question string) string {
	return fmt.Sprintf(`You grade whether a retrieved passage is relevant to a questionnaire question.
Question: %s
Reply with a JSON object: {"relevant": true|false}. A passage is relevant if it contains facts usable to answer the question, even partially.`, question)
}

func generatePrompt(question, rejectedDraft string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Answer the questionnaire question using only the numbered evidence passages below.
Question: %s
Reply with a JSON object:
{"answer": "...", "is_answerable": true|false, "cited_indices": [1, 2]}
Rules: cite every passage you relied on by its number; if the evidence does not contain the answer, set is_answerable to false and leave answer empty. Never use knowledge outside the evidence.`, question)
	if rejectedDraft != "" {
		b.WriteString("\nAn earlier draft failed the grounding check:\n")
		b.WriteString(rejectedDraft)
		b.WriteString("\nWrite a different answer and keep every claim tied to a cited passage.")
	}
	return b.String()
}

func verifyPrompt(question, draft string) string {
	return fmt.Sprintf(`Check a drafted answer against its evidence.
Question: %s
Draft answer: %s
Reply with a JSON object: {"grounded": true|false, "addresses_question": true|false}.
grounded means every claim in the draft is supported by the evidence passages; addresses_question means the draft actually answers what was asked.`, question, draft)
}

func rewritePrompt(question, working, reason, feedback string) string {
	var b strings.Builder
	b.WriteString("Rephrase a search query to surface better evidence from a document corpus.\n")
	b.WriteString("Original question: " + question + "\n")
	if working != question && working != "" {
		b.WriteString("Previous query: " + working + "\n")
	}
	if reason != "" {
		b.WriteString("The previous attempt failed because " + reason + ".\n")
	}
	if feedback != "" {
		b.WriteString("Reviewer feedback to address: " + feedback + "\n")
	}
	b.WriteString("Reply with the rewritten query only, no commentary.")
	return b.String()
}

func evidenceContext(cp Checkpoint) []string {
	out := make([]string, 0, len(cp.Evidence))
	for i, ev := range cp.Evidence {
		out = append(out, fmt.Sprintf("[%d] (%s) %s", i+1, ev.DocumentName, ev.Text))
	}
	return out
}
