package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dossier/internal/agent"
	"dossier/internal/util"

	"github.com/jackc/pgx/v5"
)

// CheckpointRepo persists agent checkpoints keyed by thread id. One row
// per thread; Save overwrites so a resumed run always sees the latest
// transition.
type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

func (r *CheckpointRepo) Save(ctx context.Context, cp agent.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO agent_checkpoints (thread_id, state, payload, updated_at)
VALUES ($1, $2, $3::jsonb, NOW())
ON CONFLICT (thread_id) DO UPDATE SET state=EXCLUDED.state, payload=EXCLUDED.payload, updated_at=NOW()`,
		cp.ThreadID, string(cp.State), string(payload))
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) Load(ctx context.Context, threadID string) (agent.Checkpoint, error) {
	var payload []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT payload FROM agent_checkpoints WHERE thread_id=$1`, threadID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agent.Checkpoint{}, fmt.Errorf("checkpoint %s: %w", threadID, util.ErrNotFound)
		}
		return agent.Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	var cp agent.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return agent.Checkpoint{}, fmt.Errorf("checkpoint %s: %w: %v", threadID, util.ErrCheckpointCorrupt, err)
	}
	if cp.ThreadID == "" || cp.State == "" {
		return agent.Checkpoint{}, fmt.Errorf("checkpoint %s missing state: %w", threadID, util.ErrCheckpointCorrupt)
	}
	return cp, nil
}

func (r *CheckpointRepo) Delete(ctx context.Context, threadID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM agent_checkpoints WHERE thread_id=$1`, threadID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
