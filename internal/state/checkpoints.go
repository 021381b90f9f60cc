// internal/state/checkpoints.go
package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/colebrumley/logtrigger/internal/tailer"
)

// CheckpointStore keeps tailer checkpoints in the state database so a
// restarted daemon resumes where it stopped.
type CheckpointStore struct {
	db *DB
}

var _ tailer.CheckpointStore = (*CheckpointStore)(nil)

// Checkpoints returns a tailer.CheckpointStore backed by d.
func (d *DB) Checkpoints() *CheckpointStore {
	return &CheckpointStore{db: d}
}

// Load returns the checkpoint for path, if any.
func (s *CheckpointStore) Load(path string) (tailer.Checkpoint, bool, error) {
	var cp tailer.Checkpoint
	err := s.db.db.QueryRow(
		"SELECT signature, mod_time, read_offset FROM checkpoints WHERE slug = ?",
		tailer.Slug(path),
	).Scan(&cp.Signature, &cp.ModTime, &cp.Offset)
	if errors.Is(err, sql.ErrNoRows) {
		return tailer.Checkpoint{}, false, nil
	}
	if err != nil {
		return tailer.Checkpoint{}, false, fmt.Errorf("loading checkpoint: %w", err)
	}
	return cp, true, nil
}

// Save upserts the checkpoint for path.
func (s *CheckpointStore) Save(path string, cp tailer.Checkpoint) error {
	_, err := s.db.db.Exec(`
		INSERT INTO checkpoints (slug, path, signature, mod_time, read_offset, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slug) DO UPDATE SET
			path = excluded.path,
			signature = excluded.signature,
			mod_time = excluded.mod_time,
			read_offset = excluded.read_offset,
			updated_at = CURRENT_TIMESTAMP`,
		tailer.Slug(path), path, cp.Signature, cp.ModTime, cp.Offset,
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for path. Deleting a missing checkpoint is
// not an error.
func (s *CheckpointStore) Delete(path string) error {
	if _, err := s.db.db.Exec("DELETE FROM checkpoints WHERE slug = ?", tailer.Slug(path)); err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

// Persistent reports true: checkpoints survive restarts.
func (s *CheckpointStore) Persistent() bool { return true }
