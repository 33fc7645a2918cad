package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dossier/internal/providers"
	"dossier/internal/util"
)

type Options struct {
	MaxRetries   int
	RetryPenalty float64
}

// Machine executes one answer run as explicit transitions. Step advances
// exactly one state so callers can checkpoint between transitions; Run
// loops Step to a terminal state.
type Machine struct {
	retriever Retriever
	llm       providers.LLMProvider
	opts      Options
}

func NewMachine(retriever Retriever, llm providers.LLMProvider, opts Options) *Machine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryPenalty <= 0 {
		opts.RetryPenalty = 0.2
	}
	return &Machine{retriever: retriever, llm: llm, opts: opts}
}

func (m *Machine) Run(ctx context.Context, cp Checkpoint, save func(Checkpoint) error) (Checkpoint, error) {
	for !cp.State.Terminal() {
		next, err := m.Step(ctx, cp)
		if err != nil {
			return cp, err
		}
		cp = next
		if save != nil {
			if err := save(cp); err != nil {
				return cp, err
			}
		}
	}
	return cp, nil
}

// Step executes the transition out of cp.State and returns the successor
// checkpoint with one trace entry appended. Calling Step on a terminal
// state is an error.
func (m *Machine) Step(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	switch cp.State {
	case StateRetrieve:
		return m.stepRetrieve(ctx, cp)
	case StateGrade:
		return m.stepGrade(ctx, cp)
	case StateRewrite:
		return m.stepRewrite(ctx, cp)
	case StateGenerate:
		return m.stepGenerate(ctx, cp)
	case StateVerify:
		return m.stepVerify(ctx, cp)
	default:
		return cp, fmt.Errorf("no transition out of state %s", cp.State)
	}
}

func (m *Machine) stepRetrieve(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	evidence, err := m.retriever.Retrieve(ctx, cp.WorkingQuery, cp.Scope)
	if err != nil {
		return cp, fmt.Errorf("retrieve: %w", err)
	}
	cp.Evidence = evidence
	if len(evidence) == 0 {
		if cp.RetrievalRetries < m.opts.MaxRetries {
			cp.RetrievalRetries++
			cp.State = StateRewrite
			cp.RewriteReason = "the query matched no passages in the corpus"
			cp.trace(StateRetrieve, fmt.Sprintf("no evidence, rewriting query (attempt %d/%d)", cp.RetrievalRetries, m.opts.MaxRetries))
			return cp, nil
		}
		return m.finishUnanswerable(cp, StateRetrieve, "retrieval budget exhausted with no evidence"), nil
	}
	cp.State = StateGrade
	cp.trace(StateRetrieve, fmt.Sprintf("retrieved %d evidence passages", len(evidence)))
	return cp, nil
}

func (m *Machine) stepGrade(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	kept := cp.Evidence[:0:0]
	for _, ev := range cp.Evidence {
		resp, _, err := m.llm.Generate(ctx, providers.GenerateRequest{
			Operation: opGrade,
			Prompt:    gradePrompt(cp.Question),
			Context:   []string{ev.Text},
			JSONMode:  true,
		})
		if err != nil {
			return cp, fmt.Errorf("grade evidence: %w", err)
		}
		var verdict struct {
			Relevant bool `json:"relevant"`
		}
		if err := json.Unmarshal(extractJSON(resp.Text), &verdict); err != nil {
			// An unparseable grade keeps the passage; dropping evidence
			// on a malformed reply loses recall for no gain.
			verdict.Relevant = true
		}
		if verdict.Relevant {
			kept = append(kept, ev)
		}
	}
	dropped := len(cp.Evidence) - len(kept)
	cp.Evidence = kept
	if len(kept) == 0 {
		if cp.RetrievalRetries < m.opts.MaxRetries {
			cp.RetrievalRetries++
			cp.State = StateRewrite
			cp.RewriteReason = "every retrieved passage was graded irrelevant to the question"
			cp.trace(StateGrade, fmt.Sprintf("all evidence graded irrelevant, rewriting query (attempt %d/%d)", cp.RetrievalRetries, m.opts.MaxRetries))
			return cp, nil
		}
		return m.finishUnanswerable(cp, StateGrade, "all evidence graded irrelevant, budget exhausted"), nil
	}
	cp.State = StateGenerate
	cp.trace(StateGrade, fmt.Sprintf("graded evidence: kept %d, dropped %d", len(kept), dropped))
	return cp, nil
}

func (m *Machine) stepRewrite(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	resp, _, err := m.llm.Generate(ctx, providers.GenerateRequest{
		Operation: opRewrite,
		Prompt:    rewritePrompt(cp.Question, cp.WorkingQuery, cp.RewriteReason, cp.Feedback),
	})
	if err != nil {
		return cp, fmt.Errorf("rewrite query: %w", err)
	}
	rewritten := strings.TrimSpace(resp.Text)
	if rewritten != "" {
		cp.WorkingQuery = rewritten
	}
	cp.RewriteReason = ""
	cp.State = StateRetrieve
	cp.trace(StateRewrite, "rewrote query")
	return cp, nil
}

func (m *Machine) stepGenerate(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	resp, _, err := m.llm.Generate(ctx, providers.GenerateRequest{
		Operation: opGenerate,
		Prompt:    generatePrompt(cp.Question, cp.Draft),
		Context:   evidenceContext(cp),
		JSONMode:  true,
	})
	if errors.Is(err, context.DeadlineExceeded) {
		// A timed-out call consumes a generation retry instead of
		// failing the run.
		if cp.GenerationRetries < m.opts.MaxRetries {
			cp.GenerationRetries++
			cp.trace(StateGenerate, fmt.Sprintf("generation timed out, retrying (attempt %d/%d)", cp.GenerationRetries, m.opts.MaxRetries))
			return cp, nil
		}
		return cp, fmt.Errorf("generate answer: %w", util.ErrGenerationTimeout)
	}
	if err != nil {
		return cp, fmt.Errorf("generate answer: %w", err)
	}
	var gen struct {
		Answer       string `json:"answer"`
		IsAnswerable bool   `json:"is_answerable"`
		CitedIndices []int  `json:"cited_indices"`
	}
	if err := json.Unmarshal(extractJSON(resp.Text), &gen); err != nil {
		if cp.GenerationRetries < m.opts.MaxRetries {
			cp.GenerationRetries++
			cp.trace(StateGenerate, fmt.Sprintf("malformed generation output, retrying (attempt %d/%d)", cp.GenerationRetries, m.opts.MaxRetries))
			return cp, nil
		}
		return m.finishUnanswerable(cp, StateGenerate, "generation output stayed malformed, budget exhausted"), nil
	}
	if !gen.IsAnswerable {
		return m.finishUnanswerable(cp, StateGenerate, "model judged the question unanswerable from the evidence"), nil
	}
	cp.Draft = strings.TrimSpace(gen.Answer)
	cp.CitedIndices = validIndices(gen.CitedIndices, len(cp.Evidence))
	cp.IsAnswerable = true
	cp.State = StateVerify
	cp.trace(StateGenerate, fmt.Sprintf("drafted answer citing %d passages", len(cp.CitedIndices)))
	return cp, nil
}

func (m *Machine) stepVerify(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	resp, _, err := m.llm.Generate(ctx, providers.GenerateRequest{
		Operation: opVerify,
		Prompt:    verifyPrompt(cp.Question, cp.Draft),
		Context:   evidenceContext(cp),
		JSONMode:  true,
	})
	if err != nil {
		return cp, fmt.Errorf("verify answer: %w", err)
	}
	var v struct {
		Grounded          bool `json:"grounded"`
		AddressesQuestion bool `json:"addresses_question"`
	}
	if err := json.Unmarshal(extractJSON(resp.Text), &v); err != nil {
		// Treat an unreadable verdict as a failed grounding check.
		v.Grounded = false
	}
	switch {
	case v.Grounded && v.AddressesQuestion:
		cp.State = StateDone
		cp.trace(StateVerify, "answer verified")
		return cp, nil
	case !v.Grounded:
		if cp.GenerationRetries < m.opts.MaxRetries {
			cp.GenerationRetries++
			cp.State = StateGenerate
			cp.trace(StateVerify, fmt.Sprintf("draft not grounded, regenerating (attempt %d/%d)", cp.GenerationRetries, m.opts.MaxRetries))
			return cp, nil
		}
		return m.finishUnanswerable(cp, StateVerify, "draft never grounded, budget exhausted"), nil
	default:
		if cp.RetrievalRetries < m.opts.MaxRetries {
			cp.RetrievalRetries++
			cp.State = StateRewrite
			cp.RewriteReason = "the drafted answer did not address what was asked"
			cp.Draft = ""
			cp.CitedIndices = nil
			cp.trace(StateVerify, fmt.Sprintf("draft misses the question, re-retrieving (attempt %d/%d)", cp.RetrievalRetries, m.opts.MaxRetries))
			return cp, nil
		}
		return m.finishUnanswerable(cp, StateVerify, "draft never addressed the question, budget exhausted"), nil
	}
}

func (m *Machine) finishUnanswerable(cp Checkpoint, node State, reason string) Checkpoint {
	cp.State = StateUnanswerable
	cp.Draft = ""
	cp.CitedIndices = nil
	cp.IsAnswerable = false
	cp.trace(node, reason)
	return cp
}

func validIndices(indices []int, n int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if i >= 1 && i <= n && !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
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
