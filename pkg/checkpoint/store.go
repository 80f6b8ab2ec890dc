package checkpoint

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/soundprediction/uniblocker/pkg/utils"
)

// ErrInvalidTrialID is returned for trial IDs that cannot be used as a
// single file name inside the checkpoint directory.
var ErrInvalidTrialID = errors.New("invalid trial ID")

const filePrefix, fileExt = "checkpoint_", ".json"

// CheckpointManager stores one JSON file per trial in a directory.
type CheckpointManager struct {
	dir string
}

// NewCheckpointManager creates dir if needed. An empty dir means
// $TMPDIR/uniblocker-checkpoints.
func NewCheckpointManager(dir string) (*CheckpointManager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "uniblocker-checkpoints")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &CheckpointManager{dir: dir}, nil
}

// GetCheckpointDir returns the directory checkpoints are written to.
func (m *CheckpointManager) GetCheckpointDir() string { return m.dir }

// GetCheckpointPath returns where the checkpoint of trialID lives.
func (m *CheckpointManager) GetCheckpointPath(trialID string) (string, error) {
	if utils.ValidateID(trialID) != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrialID, trialID)
	}
	return filepath.Join(m.dir, filePrefix+trialID+fileExt), nil
}

// Save stamps LastUpdatedAt and replaces the file atomically.
func (m *CheckpointManager) Save(_ context.Context, cp *TrialCheckpoint) error {
	path, err := m.GetCheckpointPath(cp.TrialID)
	if err != nil {
		return err
	}
	cp.LastUpdatedAt = time.Now()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint %s: %w", cp.TrialID, err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func readCheckpoint(path string) (*TrialCheckpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cp TrialCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %s: %w", filepath.Base(path), err)
	}
	return &cp, nil
}

// Load returns the checkpoint of trialID, or nil when there is none.
func (m *CheckpointManager) Load(_ context.Context, trialID string) (*TrialCheckpoint, error) {
	path, err := m.GetCheckpointPath(trialID)
	if err != nil {
		return nil, err
	}
	cp, err := readCheckpoint(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return cp, err
}

// Exists reports whether trialID has a checkpoint.
func (m *CheckpointManager) Exists(_ context.Context, trialID string) (bool, error) {
	path, err := m.GetCheckpointPath(trialID)
	if err != nil {
		return false, err
	}
	switch _, err := os.Stat(path); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes the checkpoint of trialID. Deleting a missing checkpoint
// is not an error.
func (m *CheckpointManager) Delete(_ context.Context, trialID string) error {
	path, err := m.GetCheckpointPath(trialID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint %s: %w", trialID, err)
	}
	return nil
}

// List returns every readable checkpoint, oldest first. Unreadable files
// and in-flight temporary files are skipped.
func (m *CheckpointManager) List(ctx context.Context) ([]*TrialCheckpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var out []*TrialCheckpoint
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		cp, err := readCheckpoint(filepath.Join(m.dir, name))
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b *TrialCheckpoint) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.TrialID, b.TrialID))
	})
	return out, nil
}
