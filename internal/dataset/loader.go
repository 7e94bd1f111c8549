package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// fileEntry is a candidate batch or checkpoint file.
type fileEntry struct {
	path    string
	name    string
	modTime time.Time
}

// listMatching returns files in dir named prefix*.json, newest first.
// Files with equal modification times are ordered by name, greater first.
func listMatching(dir, prefix string) ([]fileEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}

	var files []fileEntry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		files = append(files, fileEntry{
			path:    filepath.Join(dir, name),
			name:    name,
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].name > files[j].name
	})
	return files, nil
}

func newest(dir, prefix string) (fileEntry, error) {
	files, err := listMatching(dir, prefix)
	if err != nil {
		return fileEntry{}, err
	}
	if len(files) == 0 {
		return fileEntry{}, ErrNotFound
	}
	return files[0], nil
}

// LatestBatchPath returns the path of the newest article batch file in dir.
func LatestBatchPath(dir string) (string, error) {
	f, err := newest(dir, BatchPrefix)
	if err != nil {
		return "", err
	}
	return f.path, nil
}

// LoadArticles parses the newest rss_articles_*.json file in dir.
// Returns ErrNotFound if dir holds no batch file.
func LoadArticles(dir string) (Batch, error) {
	f, err := newest(dir, BatchPrefix)
	if err != nil {
		return Batch{}, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return Batch{}, fmt.Errorf("reading batch file: %w", err)
	}

	var articles []Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return Batch{}, fmt.Errorf("parsing batch file %s: %w", f.name, err)
	}
	return Batch{Path: f.path, Articles: articles}, nil
}

// LoadLatestCheckpoint parses the newest labels_*.json file in dir.
// Returns ErrNotFound if dir holds no checkpoint.
func LoadLatestCheckpoint(dir string) (Checkpoint, error) {
	f, err := newest(dir, CheckpointPrefix)
	if err != nil {
		return Checkpoint{}, err
	}
	return ReadCheckpoint(f.path)
}

// ReadCheckpoint parses the checkpoint file at path.
func ReadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("reading checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parsing checkpoint file %s: %w", filepath.Base(path), err)
	}
	if cp.Labels == nil {
		cp.Labels = Labels{}
	}
	cp.Path = path
	return cp, nil
}

// CheckpointInfo describes a checkpoint file on disk without its labels.
type CheckpointInfo struct {
	Path    string
	ModTime time.Time
}

// ListCheckpoints returns every checkpoint file in dir, newest first.
func ListCheckpoints(dir string) ([]CheckpointInfo, error) {
	files, err := listMatching(dir, CheckpointPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]CheckpointInfo, len(files))
	for i, f := range files {
		out[i] = CheckpointInfo{Path: f.path, ModTime: f.modTime}
	}
	return out, nil
}
