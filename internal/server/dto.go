package server

import (
	"tasktrove/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type UpdateProjectRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

type CreateSectionRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type UpdateSectionRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

type CreateTaskRequest struct {
	SectionID   string   `json:"section_id,omitempty"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Priority    *int     `json:"priority,omitempty" enum:"1,2,3,4"`
	DueDate     *string  `json:"due_date,omitempty" format:"date"`
	Labels      []string `json:"labels,omitempty"`
	Position    *int     `json:"position,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Priority    *int     `json:"priority,omitempty" enum:"1,2,3,4"`
	DueDate     *string  `json:"due_date,omitempty" format:"date"`
	ClearDue    bool     `json:"clear_due,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

type MoveTaskRequest struct {
	SectionID string `json:"section_id"`
	Index     int    `json:"index"`
}

type CreateLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Color     string            `json:"color,omitempty"`
	CreatedAt string            `json:"created_at" format:"date-time"`
	Sections  []SectionResponse `json:"sections,omitempty"`
}

type SectionResponse struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	Color     string   `json:"color,omitempty"`
	Position  int      `json:"position"`
	Items     []string `json:"items"`
}

type TaskResponse struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Completed   bool     `json:"completed"`
	Priority    int      `json:"priority" enum:"1,2,3,4"`
	DueDate     *string  `json:"due_date,omitempty" format:"date"`
	Labels      []string `json:"labels,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

type LabelResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		Color:     p.Color,
		CreatedAt: p.CreatedAt,
		Sections:  mapSections(p.Sections),
	}
}

func mapProjects(in []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, len(in))
	for i, p := range in {
		out[i] = projectResponse(p)
	}
	return out
}

func sectionResponse(s domain.Section) SectionResponse {
	items := s.Items
	if items == nil {
		items = []string{}
	}
	return SectionResponse{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Name:      s.Name,
		Color:     s.Color,
		Position:  s.Position,
		Items:     items,
	}
}

func mapSections(in []domain.Section) []SectionResponse {
	out := make([]SectionResponse, len(in))
	for i, s := range in {
		out[i] = sectionResponse(s)
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		Labels:      t.Labels,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, len(in))
	for i, t := range in {
		out[i] = taskResponse(t)
	}
	return out
}

func labelResponse(l domain.Label) LabelResponse {
	return LabelResponse{ID: l.ID, Name: l.Name, Color: l.Color, CreatedAt: l.CreatedAt}
}

func mapLabels(in []domain.Label) []LabelResponse {
	out := make([]LabelResponse, len(in))
	for i, l := range in {
		out[i] = labelResponse(l)
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, len(in))
	for i, e := range in {
		out[i] = eventResponse(e)
	}
	return out
}
