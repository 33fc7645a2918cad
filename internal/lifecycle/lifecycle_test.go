package lifecycle

import (
	"context"
	"testing"

	"dossier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	qs := []string{"q1", "q2"}

	assert.Equal(t, models.ProjectDraft, DeriveStatus(models.ProjectDraft, nil, nil, false))
	assert.Equal(t, models.ProjectDraft, DeriveStatus(models.ProjectDraft, qs, nil, false))
	assert.Equal(t, models.ProjectProcessing, DeriveStatus(models.ProjectDraft, qs, map[string]models.AnswerStatus{
		"q1": models.AnswerPending,
	}, true))
	assert.Equal(t, models.ProjectReady, DeriveStatus(models.ProjectProcessing, qs, map[string]models.AnswerStatus{
		"q1": models.AnswerPending, "q2": models.AnswerPending,
	}, true))
	assert.Equal(t, models.ProjectReview, DeriveStatus(models.ProjectReady, qs, map[string]models.AnswerStatus{
		"q1": models.AnswerConfirmed, "q2": models.AnswerPending,
	}, true))
	assert.Equal(t, models.ProjectCompleted, DeriveStatus(models.ProjectReview, qs, map[string]models.AnswerStatus{
		"q1": models.AnswerConfirmed, "q2": models.AnswerConfirmed,
	}, true))
	// MISSING_DATA counts as reviewed but not completed.
	assert.Equal(t, models.ProjectReview, DeriveStatus(models.ProjectReady, qs, map[string]models.AnswerStatus{
		"q1": models.AnswerConfirmed, "q2": models.AnswerMissingData,
	}, true))
}

func TestDeriveStatusKeepsOutdatedAcrossReviews(t *testing.T) {
	qs := []string{"q1", "q2"}
	fullyConfirmed := map[string]models.AnswerStatus{
		"q1": models.AnswerConfirmed, "q2": models.AnswerConfirmed,
	}

	// Reviewing answers on a stale project must not report it COMPLETED;
	// the answers still predate the current corpus.
	assert.Equal(t, models.ProjectOutdated, DeriveStatus(models.ProjectOutdated, qs, fullyConfirmed, false))
	assert.Equal(t, models.ProjectOutdated, DeriveStatus(models.ProjectOutdated, qs, map[string]models.AnswerStatus{
		"q1": models.AnswerConfirmed, "q2": models.AnswerPending,
	}, false))

	// A fresh generation run is the only way out.
	assert.Equal(t, models.ProjectCompleted, DeriveStatus(models.ProjectOutdated, qs, fullyConfirmed, true))
	assert.Equal(t, models.ProjectProcessing, DeriveStatus(models.ProjectOutdated, qs, map[string]models.AnswerStatus{
		"q1": models.AnswerPending,
	}, true))
}

func TestValidateReviewTransition(t *testing.T) {
	ok := [][2]models.AnswerStatus{
		{models.AnswerPending, models.AnswerConfirmed},
		{models.AnswerPending, models.AnswerRejected},
		{models.AnswerPending, models.AnswerManualUpdated},
		{models.AnswerRejected, models.AnswerManualUpdated},
		{models.AnswerManualUpdated, models.AnswerConfirmed},
		{models.AnswerManualUpdated, models.AnswerMissingData},
	}
	for _, tr := range ok {
		assert.NoError(t, ValidateReviewTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
	bad := [][2]models.AnswerStatus{
		{models.AnswerConfirmed, models.AnswerPending},
		{models.AnswerConfirmed, models.AnswerRejected},
		{models.AnswerRejected, models.AnswerConfirmed},
		{models.AnswerMissingData, models.AnswerConfirmed},
		{models.AnswerPending, models.AnswerMissingData},
	}
	for _, tr := range bad {
		assert.Error(t, ValidateReviewTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

type fakeProjectStore struct {
	projects []models.Project
	statuses map[string]models.ProjectStatus
}

func (f *fakeProjectStore) ListGeneratedAllDocs(context.Context) ([]models.Project, error) {
	return f.projects, nil
}

func (f *fakeProjectStore) SetStatus(_ context.Context, projectID string, status models.ProjectStatus) error {
	f.statuses[projectID] = status
	return nil
}

type fakeAnswerStore struct {
	staled []string
}

func (f *fakeAnswerStore) MarkStaleByProject(_ context.Context, projectID string) error {
	f.staled = append(f.staled, projectID)
	return nil
}

func TestInvalidatorOutdatesAllDocsProjects(t *testing.T) {
	// Only ALL_DOCS projects past generation are candidates; the store
	// query already excludes SPECIFIC-scope and DRAFT projects.
	ps := &fakeProjectStore{
		projects: []models.Project{
			{ProjectID: "p1", Scope: models.ScopeAllDocs, Status: models.ProjectReady},
			{ProjectID: "p2", Scope: models.ScopeAllDocs, Status: models.ProjectCompleted},
		},
		statuses: map[string]models.ProjectStatus{},
	}
	as := &fakeAnswerStore{}

	outdated, err := NewInvalidator(ps, as).OnDocumentReady(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, outdated)
	assert.Equal(t, models.ProjectOutdated, ps.statuses["p1"])
	assert.Equal(t, models.ProjectOutdated, ps.statuses["p2"])
	assert.ElementsMatch(t, []string{"p1", "p2"}, as.staled)
}

func TestInvalidatorNoCandidates(t *testing.T) {
	ps := &fakeProjectStore{statuses: map[string]models.ProjectStatus{}}
	as := &fakeAnswerStore{}
	outdated, err := NewInvalidator(ps, as).OnDocumentReady(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outdated)
	assert.Empty(t, as.staled)
}
