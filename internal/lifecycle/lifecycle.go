package lifecycle

import (
	"context"
	"fmt"
	"time"

	"dossier/internal/models"

	"github.com/google/uuid"
)

// DeriveStatus computes a project's status from its questions' live
// answers. Invalidation writes OUTDATED out of band; it sticks until a
// generation run actually starts, so review events on a stale project
// never hide that its answers predate the current corpus.
func DeriveStatus(current models.ProjectStatus, questionIDs []string, live map[string]models.AnswerStatus, generationTriggered bool) models.ProjectStatus {
	if current == models.ProjectOutdated && !generationTriggered {
		return models.ProjectOutdated
	}
	if len(questionIDs) == 0 {
		return models.ProjectDraft
	}
	answered, reviewed, confirmed := 0, 0, 0
	for _, q := range questionIDs {
		st, ok := live[q]
		if !ok {
			continue
		}
		answered++
		if st != models.AnswerPending {
			reviewed++
		}
		if st == models.AnswerConfirmed {
			confirmed++
		}
	}
	switch {
	case answered < len(questionIDs):
		if generationTriggered {
			return models.ProjectProcessing
		}
		return models.ProjectDraft
	case confirmed == len(questionIDs):
		return models.ProjectCompleted
	case reviewed > 0:
		return models.ProjectReview
	default:
		return models.ProjectReady
	}
}

// reviewTransitions is the allowed review edge set. Anything not listed
// is rejected.
var reviewTransitions = map[models.AnswerStatus][]models.AnswerStatus{
	models.AnswerPending:       {models.AnswerConfirmed, models.AnswerRejected, models.AnswerManualUpdated},
	models.AnswerRejected:      {models.AnswerManualUpdated},
	models.AnswerManualUpdated: {models.AnswerConfirmed, models.AnswerMissingData},
}

func ValidateReviewTransition(from, to models.AnswerStatus) error {
	for _, allowed := range reviewTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("review transition %s -> %s not allowed", from, to)
}

// NewAudit builds the immutable record appended alongside every review
// transition.
func NewAudit(answerID string, from, to models.AnswerStatus, actor, comment string) models.ReviewAudit {
	return models.ReviewAudit{
		AuditID:    uuid.NewString(),
		AnswerID:   answerID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Comment:    comment,
		At:         time.Now().UTC(),
	}
}

// ProjectStore and AnswerStore are the narrow repo surfaces invalidation
// needs.
type ProjectStore interface {
	ListGeneratedAllDocs(ctx context.Context) ([]models.Project, error)
	SetStatus(ctx context.Context, projectID string, status models.ProjectStatus) error
}

type AnswerStore interface {
	MarkStaleByProject(ctx context.Context, projectID string) error
}

// Invalidator fans a newly indexed document out to every ALL_DOCS
// project that already generated answers: the project goes OUTDATED and
// its AI answers are superseded, kept for audit. SPECIFIC-scope projects
// are untouched.
type Invalidator struct {
	projects ProjectStore
	answers  AnswerStore
}

func NewInvalidator(projects ProjectStore, answers AnswerStore) *Invalidator {
	return &Invalidator{projects: projects, answers: answers}
}

func (v *Invalidator) OnDocumentReady(ctx context.Context) ([]string, error) {
	projects, err := v.projects.ListGeneratedAllDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invalidation candidates: %w", err)
	}
	outdated := make([]string, 0, len(projects))
	for _, p := range projects {
		if err := v.projects.SetStatus(ctx, p.ProjectID, models.ProjectOutdated); err != nil {
			return outdated, fmt.Errorf("outdate project %s: %w", p.ProjectID, err)
		}
		if err := v.answers.MarkStaleByProject(ctx, p.ProjectID); err != nil {
			return outdated, fmt.Errorf("stale answers for project %s: %w", p.ProjectID, err)
		}
		outdated = append(outdated, p.ProjectID)
	}
	return outdated, nil
}
