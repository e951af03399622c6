package store

import (
	"fmt"
	"strings"
	"time"
)

// Viewpoint is a saved perspective on a panorama.
type Viewpoint struct {
	Name    string    `json:"name"`
	Zoom    float64   `json:"zoom"`
	Phi     float64   `json:"phi"`
	Theta   float64   `json:"theta"`
	Created time.Time `json:"created"`
}

// Validate checks that the viewpoint can be stored.
func (v *Viewpoint) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("viewpoint name cannot be empty")
	}
	if v.Zoom <= 0 {
		return fmt.Errorf("viewpoint zoom must be positive, got %v", v.Zoom)
	}
	return nil
}

// validatePanoramaKey rejects keys that would escape the storage directory.
// Keys are picture file names, not paths.
func validatePanoramaKey(key string) error {
	if key == "" {
		return fmt.Errorf("panorama key cannot be empty")
	}
	if strings.ContainsAny(key, "/\\") || key == "." || key == ".." {
		return fmt.Errorf("invalid panorama key: %q", key)
	}
	return nil
}
