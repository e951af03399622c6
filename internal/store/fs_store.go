package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Viewpoints are stored as one JSON file per panorama:
// <baseDir>/viewpoints/<panorama>.json
//
// Thread-safety: writes go through atomic file operations (rename) and do not
// require locks. Multiple goroutines can safely call methods concurrently.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "viewpoints"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// viewpointPath returns the JSON file path for a panorama key.
func (fs *FSStore) viewpointPath(panorama string) string {
	return filepath.Join(fs.baseDir, "viewpoints", panorama+".json")
}

// SaveViewpoints atomically replaces the viewpoint list of a panorama.
// Uses temp file + rename pattern to ensure atomicity.
func (fs *FSStore) SaveViewpoints(panorama string, viewpoints []Viewpoint) error {
	if err := validatePanoramaKey(panorama); err != nil {
		return err
	}
	for i := range viewpoints {
		if err := viewpoints[i].Validate(); err != nil {
			return fmt.Errorf("viewpoint %d: %w", i, err)
		}
	}

	data, err := json.MarshalIndent(viewpoints, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize viewpoints: %w", err)
	}

	// Write to temporary file first (atomic pattern)
	finalPath := fs.viewpointPath(panorama)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp viewpoint file: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		// Clean up temp file on failure
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename viewpoint file: %w", err)
	}

	slog.Debug("Viewpoints saved", "panorama", panorama, "count", len(viewpoints), "path", finalPath)
	return nil
}

// LoadViewpoints returns the saved viewpoints of a panorama.
func (fs *FSStore) LoadViewpoints(panorama string) ([]Viewpoint, error) {
	if err := validatePanoramaKey(panorama); err != nil {
		return nil, err
	}

	path := fs.viewpointPath(panorama)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Panorama: panorama}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read viewpoint file: %w", err)
	}

	var viewpoints []Viewpoint
	if err := json.Unmarshal(data, &viewpoints); err != nil {
		return nil, fmt.Errorf("failed to deserialize viewpoints: %w", err)
	}

	slog.Debug("Viewpoints loaded", "panorama", panorama, "count", len(viewpoints))
	return viewpoints, nil
}

// ListPanoramas returns the keys of all panoramas with saved viewpoints.
func (fs *FSStore) ListPanoramas() ([]string, error) {
	dir := filepath.Join(fs.baseDir, "viewpoints")

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		// Nothing saved yet, return empty slice
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read viewpoint directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}

	slog.Debug("Listed panoramas with viewpoints", "count", len(keys))
	return keys, nil
}

// DeleteViewpoints removes all saved viewpoints of a panorama.
func (fs *FSStore) DeleteViewpoints(panorama string) error {
	if err := validatePanoramaKey(panorama); err != nil {
		return err
	}

	path := fs.viewpointPath(panorama)

	if err := os.Remove(path); os.IsNotExist(err) {
		return &NotFoundError{Panorama: panorama}
	} else if err != nil {
		return fmt.Errorf("failed to remove viewpoint file: %w", err)
	}

	slog.Debug("Viewpoints deleted", "panorama", panorama, "path", path)
	return nil
}
