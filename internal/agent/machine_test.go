package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"dossier/internal/index"
	"dossier/internal/models"
	"dossier/internal/providers"
	"dossier/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	evidence []models.Evidence
	calls    int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, _ index.Scope) ([]models.Evidence, error) {
	s.calls++
	return s.evidence, nil
}

// scriptedLLM answers each operation from a fixed script; unscripted
// operations fall through to the deterministic mock.
type scriptedLLM struct {
	byOperation map[string][]string
	cursor      map[string]int
	fallback    providers.LLMProvider
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		byOperation: map[string][]string{},
		cursor:      map[string]int{},
		fallback:    providers.NewMockProvider(8),
	}
}

func (s *scriptedLLM) script(op string, replies ...string) {
	s.byOperation[op] = append(s.byOperation[op], replies...)
}

func (s *scriptedLLM) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	replies := s.byOperation[req.Operation]
	i := s.cursor[req.Operation]
	if i < len(replies) {
		s.cursor[req.Operation] = i + 1
		return providers.GenerateResponse{Text: replies[i]}, providers.ProviderInfo{Name: "scripted"}, nil
	}
	return s.fallback.Generate(ctx, req)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func someEvidence() []models.Evidence {
	return []models.Evidence{
		{ChunkID: "cit-1", SemanticChunkID: "sem-1", DocumentID: "doc-1", DocumentName: "policy.pdf",
			Text: "Customer data is encrypted at rest with AES-256.", Score: 0.8},
		{ChunkID: "cit-2", SemanticChunkID: "sem-2", DocumentID: "doc-1", DocumentName: "policy.pdf",
			Text: "Customer data encryption keys rotate every 90 days.", Score: 0.6},
	}
}

func TestRunHappyPath(t *testing.T) {
	retriever := &stubRetriever{evidence: someEvidence()}
	m := NewMachine(retriever, providers.NewMockProvider(8), Options{MaxRetries: 3, RetryPenalty: 0.2})

	cp := NewCheckpoint("thread-1", "proj-1", "q-1", "Is customer data encrypted at rest?", index.Scope{})
	var saved int
	final, err := m.Run(context.Background(), cp, func(Checkpoint) error { saved++; return nil })
	require.NoError(t, err)

	assert.Equal(t, StateDone, final.State)
	assert.True(t, final.IsAnswerable)
	assert.NotEmpty(t, final.Draft)
	assert.Equal(t, []int{1, 2}, final.CitedIndices)
	assert.Equal(t, 0, final.RetrievalRetries)
	assert.Equal(t, 0, final.GenerationRetries)
	// One checkpoint per transition, one trace entry per checkpoint,
	// each recording the node that executed.
	assert.Equal(t, saved, len(final.Trace))
	require.Len(t, final.Trace, 4)
	assert.Equal(t, "RETRIEVE", final.Trace[0].State)
	assert.Equal(t, "GRADE", final.Trace[1].State)
	assert.Equal(t, "GENERATE", final.Trace[2].State)
	assert.Equal(t, "VERIFY", final.Trace[3].State)
}

func TestRunUnanswerableWhenNoEvidence(t *testing.T) {
	retriever := &stubRetriever{}
	m := NewMachine(retriever, providers.NewMockProvider(8), Options{MaxRetries: 2, RetryPenalty: 0.2})

	cp := NewCheckpoint("thread-2", "proj-1", "q-2", "What is the DPO's shoe size?", index.Scope{})
	final, err := m.Run(context.Background(), cp, nil)
	require.NoError(t, err)

	assert.Equal(t, StateUnanswerable, final.State)
	assert.False(t, final.IsAnswerable)
	// Initial attempt plus one per rewrite.
	assert.Equal(t, 3, retriever.calls)

	answer, citations := BuildAnswer(final, 0.2)
	assert.Equal(t, FallbackAnswer, answer.Text)
	assert.Zero(t, answer.ConfidenceScore)
	assert.Equal(t, models.AnswerMissingData, answer.Status)
	assert.Empty(t, citations)
}

func TestVerifyFailuresAreBounded(t *testing.T) {
	llm := newScriptedLLM()
	// Verification never passes: grounded=false forces regeneration
	// until the generation budget runs out.
	for i := 0; i < 10; i++ {
		llm.script(opVerify, mustJSON(t, map[string]bool{"grounded": false, "addresses_question": true}))
	}
	retriever := &stubRetriever{evidence: someEvidence()}
	m := NewMachine(retriever, llm, Options{MaxRetries: 3, RetryPenalty: 0.2})

	cp := NewCheckpoint("thread-3", "proj-1", "q-3", "Is customer data encrypted at rest?", index.Scope{})
	steps := 0
	var err error
	for !cp.State.Terminal() {
		cp, err = m.Step(context.Background(), cp)
		require.NoError(t, err)
		steps++
		require.LessOrEqual(t, steps, 50, "state machine did not terminate")
	}
	assert.Equal(t, StateUnanswerable, cp.State)
	assert.Equal(t, 3, cp.GenerationRetries)
}

func TestVerifyMissRoutesBackThroughRewrite(t *testing.T) {
	llm := newScriptedLLM()
	llm.script(opVerify,
		mustJSON(t, map[string]bool{"grounded": true, "addresses_question": false}),
		mustJSON(t, map[string]bool{"grounded": true, "addresses_question": true}),
	)
	retriever := &stubRetriever{evidence: someEvidence()}
	m := NewMachine(retriever, llm, Options{MaxRetries: 3, RetryPenalty: 0.2})

	cp := NewCheckpoint("thread-4", "proj-1", "q-4", "Is customer data encrypted at rest?", index.Scope{})
	final, err := m.Run(context.Background(), cp, nil)
	require.NoError(t, err)

	assert.Equal(t, StateDone, final.State)
	assert.Equal(t, 1, final.RetrievalRetries)
	assert.Equal(t, 2, retriever.calls)
}

func TestMalformedGenerationRetriesThenGivesUp(t *testing.T) {
	llm := newScriptedLLM()
	for i := 0; i < 10; i++ {
		llm.script(opGenerate, "no json here")
	}
	retriever := &stubRetriever{evidence: someEvidence()}
	m := NewMachine(retriever, llm, Options{MaxRetries: 2, RetryPenalty: 0.2})

	cp := NewCheckpoint("thread-5", "proj-1", "q-5", "Is customer data encrypted at rest?", index.Scope{})
	final, err := m.Run(context.Background(), cp, nil)
	require.NoError(t, err)
	assert.Equal(t, StateUnanswerable, final.State)
	assert.Equal(t, 2, final.GenerationRetries)
}

func TestStepOnTerminalStateErrors(t *testing.T) {
	m := NewMachine(&stubRetriever{}, providers.NewMockProvider(8), Options{})
	cp := Checkpoint{State: StateDone}
	_, err := m.Step(context.Background(), cp)
	assert.Error(t, err)
}

func TestApplyFeedbackResetsForRefinement(t *testing.T) {
	cp := Checkpoint{
		State:             StateDone,
		RetrievalRetries:  3,
		GenerationRetries: 2,
		Draft:             "old answer",
		CitedIndices:      []int{1},
		IsAnswerable:      true,
	}
	next := ApplyFeedback(cp, "cover key rotation too")
	assert.Equal(t, StateRewrite, next.State)
	assert.Zero(t, next.RetrievalRetries)
	assert.Zero(t, next.GenerationRetries)
	assert.Empty(t, next.Draft)
	assert.Empty(t, next.CitedIndices)
	assert.Equal(t, "cover key rotation too", next.Feedback)
}

type timeoutLLM struct{}

func (timeoutLLM) Generate(context.Context, providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	return providers.GenerateResponse{}, providers.ProviderInfo{}, fmt.Errorf("call llm: %w", context.DeadlineExceeded)
}

func TestGenerateTimeoutConsumesRetriesThenErrors(t *testing.T) {
	m := NewMachine(&stubRetriever{}, timeoutLLM{}, Options{MaxRetries: 2})
	cp := Checkpoint{State: StateGenerate, Evidence: someEvidence()}

	for i := 1; i <= 2; i++ {
		next, err := m.Step(context.Background(), cp)
		require.NoError(t, err)
		assert.Equal(t, StateGenerate, next.State)
		assert.Equal(t, i, next.GenerationRetries)
		cp = next
	}
	_, err := m.Step(context.Background(), cp)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrGenerationTimeout)
}

// promptLog records every prompt per operation before delegating.
type promptLog struct {
	inner   providers.LLMProvider
	prompts map[string][]string
}

func (p *promptLog) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	p.prompts[req.Operation] = append(p.prompts[req.Operation], req.Prompt)
	return p.inner.Generate(ctx, req)
}

func TestRegenerateAfterGroundingFailureRevisesPrompt(t *testing.T) {
	llm := newScriptedLLM()
	llm.script(opGenerate,
		mustJSON(t, map[string]any{"answer": "Data is encrypted.", "is_answerable": true, "cited_indices": []int{1}}),
		mustJSON(t, map[string]any{"answer": "Data is encrypted at rest with AES-256.", "is_answerable": true, "cited_indices": []int{1, 2}}),
	)
	llm.script(opVerify,
		mustJSON(t, map[string]bool{"grounded": false, "addresses_question": true}),
		mustJSON(t, map[string]bool{"grounded": true, "addresses_question": true}),
	)
	log := &promptLog{inner: llm, prompts: map[string][]string{}}
	m := NewMachine(&stubRetriever{evidence: someEvidence()}, log, Options{MaxRetries: 3, RetryPenalty: 0.2})

	cp := NewCheckpoint("thread-6", "proj-1", "q-6", "Is customer data encrypted at rest?", index.Scope{})
	final, err := m.Run(context.Background(), cp, nil)
	require.NoError(t, err)
	require.Equal(t, StateDone, final.State)

	gen := log.prompts[opGenerate]
	require.Len(t, gen, 2)
	// The retry must not replay the identical prompt: it carries the
	// rejected draft so the model can steer away from it.
	assert.NotContains(t, gen[0], "grounding check")
	assert.Contains(t, gen[1], "grounding check")
	assert.Contains(t, gen[1], "Data is encrypted.")
}

func TestRewritePromptNamesRetrievalFailure(t *testing.T) {
	log := &promptLog{inner: newScriptedLLM(), prompts: map[string][]string{}}
	m := NewMachine(&stubRetriever{}, log, Options{MaxRetries: 1, RetryPenalty: 0.2})

	cp := NewCheckpoint("thread-7", "proj-1", "q-7", "Is MFA enforced for admin access?", index.Scope{})
	final, err := m.Run(context.Background(), cp, nil)
	require.NoError(t, err)
	assert.Equal(t, StateUnanswerable, final.State)

	rewrites := log.prompts[opRewrite]
	require.NotEmpty(t, rewrites)
	assert.Contains(t, rewrites[0], "matched no passages")
}
