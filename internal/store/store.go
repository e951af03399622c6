// Package store persists saved panorama viewpoints ("bookmarks").
package store

// Store defines the interface for viewpoint persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the panorama has no saved viewpoints (Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveViewpoints atomically replaces the viewpoint list of a panorama.
	// The implementation should use atomic write strategies (temp file +
	// rename) to prevent corruption in case of failures.
	SaveViewpoints(panorama string, viewpoints []Viewpoint) error

	// LoadViewpoints returns the saved viewpoints of a panorama.
	// Returns ErrNotFound if none have been saved.
	LoadViewpoints(panorama string) ([]Viewpoint, error)

	// ListPanoramas returns the keys of all panoramas with saved viewpoints.
	// The returned slice may be empty.
	ListPanoramas() ([]string, error)

	// DeleteViewpoints removes all saved viewpoints of a panorama.
	// Returns ErrNotFound if none have been saved.
	DeleteViewpoints(panorama string) error
}

// ErrNotFound is returned when a panorama has no saved viewpoints.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing viewpoint list.
type NotFoundError struct {
	Panorama string
}

func (e *NotFoundError) Error() string {
	if e.Panorama != "" {
		return "no saved viewpoints for panorama: " + e.Panorama
	}
	return "no saved viewpoints"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
