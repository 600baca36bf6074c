package order

import (
	"errors"

	"tasktrove/internal/domain"
)

// ErrProjectOrderRetired reports use of the flat project-level task order,
// which was replaced by per-section Items lists. Callers still holding the
// old model must migrate; continuing under the flat scheme would corrupt
// section ordering data.
var ErrProjectOrderRetired = errors.New("project-level task order retired; use per-section ordering")

// ProjectTaskOrder is the retired flat-order read. It fails unconditionally
// with ErrProjectOrderRetired so a version-mismatched caller surfaces at the
// first call instead of writing through the old scheme.
func ProjectTaskOrder(projectID string, projects []domain.Project) ([]string, error) {
	return nil, ErrProjectOrderRetired
}

// MoveTaskInProjectOrder is the retired flat-order mutation. See
// ProjectTaskOrder.
func MoveTaskInProjectOrder(projectID, taskID string, toIndex int, projects []domain.Project) ([]domain.Project, error) {
	return nil, ErrProjectOrderRetired
}
