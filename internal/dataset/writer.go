package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const maxNameAttempts = 100

// WriteCheckpoint writes cp as a new labels_<timestamp>.json file in dir and
// returns its path. The data is written and synced to a temp file first, then
// linked into place, so an existing checkpoint is never overwritten and a failed
// write leaves no partial checkpoint behind. When a file for the same second
// already exists a numeric suffix is appended.
func WriteCheckpoint(dir string, cp Checkpoint) (string, error) {
	if cp.Timestamp == "" {
		return "", fmt.Errorf("checkpoint timestamp is required")
	}
	if cp.Labels == nil {
		cp.Labels = Labels{}
	}
	cp.LabeledCount = len(cp.Labels)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling checkpoint: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".labels-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing checkpoint: %w", err)
	}

	for i := 0; i < maxNameAttempts; i++ {
		name := CheckpointPrefix + cp.Timestamp + fileSuffix
		if i > 0 {
			name = fmt.Sprintf("%s%s_%d%s", CheckpointPrefix, cp.Timestamp, i, fileSuffix)
		}
		path := filepath.Join(dir, name)

		err := os.Link(tmpPath, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("linking checkpoint %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("no free checkpoint name for timestamp %s", cp.Timestamp)
}
