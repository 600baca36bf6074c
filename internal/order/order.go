// Package order maintains per-section ordered task lists. Every function is a
// pure transformation: it takes the current sections and tasks, returns a new
// value, and never mutates its inputs. Sections other than the target are
// passed through as the identical value.
package order

import "tasktrove/internal/domain"

// OrderedTasksForSection resolves section.Items against tasks, preserving the
// items order. IDs with no matching task are dropped; a task may have been
// deleted without yet being pruned from the section.
func OrderedTasksForSection(section domain.Section, tasks []domain.Task) []domain.Task {
	byID := taskIndex(tasks)
	out := make([]domain.Task, 0, len(section.Items))
	for _, id := range section.Items {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// OrderedTasksForProject concatenates each section's ordered tasks in section
// order. Tasks whose ProjectID no longer matches are filtered out, so a task
// ID lingering in a section after the task moved to another project cannot
// leak into the result. An unknown projectID yields an empty list.
func OrderedTasksForProject(projectID string, tasks []domain.Task, projects []domain.Project) []domain.Task {
	var project *domain.Project
	for i := range projects {
		if projects[i].ID == projectID {
			project = &projects[i]
			break
		}
	}
	if project == nil {
		return []domain.Task{}
	}
	byID := taskIndex(tasks)
	out := []domain.Task{}
	for _, section := range project.Sections {
		for _, id := range section.Items {
			t, ok := byID[id]
			if !ok || t.ProjectID != projectID {
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

// MoveTaskWithinSection repositions taskID inside the section identified by
// sectionID. The task is removed first and toIndex is applied to the
// shortened list, which is the standard drag-and-drop "move to index N"
// interpretation. toIndex past the end appends; negative toIndex is clamped
// to 0. A task not present in the section is a no-op (a stale drag event is
// not an error).
func MoveTaskWithinSection(sectionID, taskID string, toIndex int, sections []domain.Section) []domain.Section {
	out := make([]domain.Section, len(sections))
	for i, section := range sections {
		if section.ID != sectionID {
			out[i] = section
			continue
		}
		from := indexOf(section.Items, taskID)
		if from < 0 {
			out[i] = section
			continue
		}
		items := make([]string, 0, len(section.Items))
		items = append(items, section.Items[:from]...)
		items = append(items, section.Items[from+1:]...)
		out[i] = section
		out[i].Items = insertAt(items, taskID, toIndex)
	}
	return out
}

// AddTaskToSection inserts taskID into the target section. A nil position
// appends; a negative position means "insert at start" (callers computing
// drop targets by reverse iteration signal the head with -1). Adding a task
// already present in the section is a no-op, so repeated calls are safe.
// An unknown sectionID leaves every section unchanged.
func AddTaskToSection(taskID, sectionID string, position *int, sections []domain.Section) []domain.Section {
	out := make([]domain.Section, len(sections))
	for i, section := range sections {
		if section.ID != sectionID || indexOf(section.Items, taskID) >= 0 {
			out[i] = section
			continue
		}
		out[i] = section
		if position == nil {
			items := make([]string, 0, len(section.Items)+1)
			items = append(items, section.Items...)
			out[i].Items = append(items, taskID)
			continue
		}
		items := make([]string, len(section.Items))
		copy(items, section.Items)
		out[i].Items = insertAt(items, taskID, *position)
	}
	return out
}

// RemoveTaskFromSection removes every occurrence of taskID from the target
// section. Duplicate IDs are a data-integrity anomaly, but removing all of
// them keeps one from leaking indefinitely. Removing an absent task is a
// no-op.
func RemoveTaskFromSection(taskID, sectionID string, sections []domain.Section) []domain.Section {
	out := make([]domain.Section, len(sections))
	for i, section := range sections {
		if section.ID != sectionID || indexOf(section.Items, taskID) < 0 {
			out[i] = section
			continue
		}
		items := make([]string, 0, len(section.Items))
		for _, id := range section.Items {
			if id != taskID {
				items = append(items, id)
			}
		}
		out[i] = section
		out[i].Items = items
	}
	return out
}

func taskIndex(tasks []domain.Task) map[string]domain.Task {
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	return byID
}

func indexOf(items []string, id string) int {
	for i, v := range items {
		if v == id {
			return i
		}
	}
	return -1
}

// insertAt places id at idx, clamping idx into [0, len(items)]. items must
// already be a private copy; the returned slice may alias it.
func insertAt(items []string, id string, idx int) []string {
	if idx < 0 {
		idx = 0
	}
	if idx > len(items) {
		idx = len(items)
	}
	items = append(items, "")
	copy(items[idx+1:], items[idx:])
	items[idx] = id
	return items
}
