package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tasktrove/internal/config"
	"tasktrove/internal/domain"
	"tasktrove/internal/events"
	"tasktrove/internal/order"
	"tasktrove/internal/repo"
)

// Engine applies task, section and project operations against the store,
// appending an event per mutation. Ordering changes go through the order
// package; the engine persists whatever sections come back changed.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() string {
	if e.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return e.Now().UTC().Format(time.RFC3339)
}

func (e Engine) writer() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InitProject creates a project and seeds its sections from cfg (or the
// built-in defaults when cfg is nil), then stores cfg alongside the project.
func (e Engine) InitProject(ctx context.Context, actorID, name string, cfg *config.Config) (domain.Project, error) {
	p := domain.Project{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: e.now(),
	}
	if cfg == nil {
		cfg = config.Default(p.ID)
	}
	if name == "" {
		p.Name = cfg.Project.Name
	}
	if p.Name == "" {
		p.Name = "Inbox"
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		for i, def := range cfg.Sections.Defaults {
			s := domain.Section{
				ID:        uuid.NewString(),
				ProjectID: p.ID,
				Name:      def.Name,
				Color:     def.Color,
				Position:  i,
				Items:     []string{},
			}
			if err := e.Repo.InsertSection(ctx, tx, s); err != nil {
				return fmt.Errorf("insert section %q: %w", def.Name, err)
			}
			p.Sections = append(p.Sections, s)
		}
		if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, cfg); err != nil {
			return fmt.Errorf("store config: %w", err)
		}
		return e.writer().Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, actorID, events.EventPayload{"name": p.Name})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) UpdateProject(ctx context.Context, actorID, projectID string, name, color *string) (domain.Project, error) {
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateProject(ctx, tx, projectID, name, color); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.ProjectUpdated, projectID, "project", projectID, actorID, updatePayload(name, color))
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

func (e Engine) DeleteProject(ctx context.Context, actorID, projectID string) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteProject(ctx, tx, projectID); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.ProjectDeleted, projectID, "project", projectID, actorID, nil)
	})
}

// --- sections ---

func (e Engine) CreateSection(ctx context.Context, actorID, projectID, name, color string) (domain.Section, error) {
	if name == "" {
		return domain.Section{}, fmt.Errorf("section name is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Section{}, err
	}
	pos, err := e.Repo.NextSectionPosition(ctx, projectID)
	if err != nil {
		return domain.Section{}, err
	}
	s := domain.Section{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Color:     color,
		Position:  pos,
		Items:     []string{},
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertSection(ctx, tx, s); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.SectionCreated, projectID, "section", s.ID, actorID, events.EventPayload{"name": name})
	})
	if err != nil {
		return domain.Section{}, err
	}
	return s, nil
}

func (e Engine) UpdateSection(ctx context.Context, actorID, sectionID string, name, color *string) (domain.Section, error) {
	s, err := e.Repo.GetSection(ctx, sectionID)
	if err != nil {
		return domain.Section{}, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateSectionMeta(ctx, tx, sectionID, name, color); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.SectionUpdated, s.ProjectID, "section", sectionID, actorID, updatePayload(name, color))
	})
	if err != nil {
		return domain.Section{}, err
	}
	return e.Repo.GetSection(ctx, sectionID)
}

// DeleteSection removes a section. Its tasks are appended to the first
// remaining section of the project so they stay reachable; deleting the last
// section is refused.
func (e Engine) DeleteSection(ctx context.Context, actorID, sectionID string) error {
	s, err := e.Repo.GetSection(ctx, sectionID)
	if err != nil {
		return err
	}
	sections, err := e.Repo.ListSections(ctx, s.ProjectID)
	if err != nil {
		return err
	}
	if len(sections) <= 1 {
		return fmt.Errorf("cannot delete the last section of a project")
	}
	var target *domain.Section
	for i := range sections {
		if sections[i].ID != sectionID {
			target = &sections[i]
			break
		}
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if len(s.Items) > 0 && target != nil {
			merged := append(append([]string{}, target.Items...), s.Items...)
			if err := e.Repo.SaveSectionItems(ctx, tx, target.ID, merged); err != nil {
				return err
			}
		}
		if err := e.Repo.DeleteSection(ctx, tx, sectionID); err != nil {
			return err
		}
		payload := events.EventPayload{"name": s.Name}
		if target != nil && len(s.Items) > 0 {
			payload["tasks_moved_to"] = target.ID
		}
		return e.writer().Append(ctx, tx, events.SectionDeleted, s.ProjectID, "section", sectionID, actorID, payload)
	})
}

// --- tasks ---

type TaskCreateOptions struct {
	ProjectID   string
	SectionID   string
	Title       string
	Description string
	Priority    int
	DueDate     *string
	Labels      []string
	Position    *int
}

func (e Engine) CreateTask(ctx context.Context, actorID string, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, fmt.Errorf("task title is required")
	}
	if opts.Priority == 0 {
		opts.Priority = 4
		if e.Config != nil && e.Config.Tasks.DefaultPriority != 0 {
			opts.Priority = e.Config.Tasks.DefaultPriority
		}
	}
	if opts.Priority < 1 || opts.Priority > 4 {
		return domain.Task{}, fmt.Errorf("priority must be 1-4")
	}
	sections, err := e.Repo.ListSections(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if len(sections) == 0 {
		return domain.Task{}, fmt.Errorf("project %s has no sections", opts.ProjectID)
	}
	sectionID := opts.SectionID
	if sectionID == "" {
		sectionID = sections[0].ID
	} else if !sectionExists(sections, sectionID) {
		return domain.Task{}, fmt.Errorf("section %s: %w", sectionID, repo.ErrNotFound)
	}
	now := e.now()
	t := domain.Task{
		ID:        uuid.NewString(),
		ProjectID: opts.ProjectID,
		Title:     opts.Title,
		Priority:  opts.Priority,
		DueDate:   opts.DueDate,
		Labels:    opts.Labels,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.Description = opts.Description
	next := order.AddTaskToSection(t.ID, sectionID, opts.Position, sections)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if err := e.Repo.SaveSections(ctx, tx, sections, next); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.TaskCreated, opts.ProjectID, "task", t.ID, actorID,
			events.EventPayload{"title": t.Title, "section_id": sectionID})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

type TaskUpdateOptions struct {
	Title       *string
	Description *string
	Priority    *int
	DueDate     *string
	ClearDue    bool
	Labels      []string
	SetLabels   bool
}

func (e Engine) UpdateTask(ctx context.Context, actorID, taskID string, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.Task{}, fmt.Errorf("task title is required")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		if *opts.Priority < 1 || *opts.Priority > 4 {
			return domain.Task{}, fmt.Errorf("priority must be 1-4")
		}
		t.Priority = *opts.Priority
	}
	if opts.ClearDue {
		t.DueDate = nil
	} else if opts.DueDate != nil {
		t.DueDate = opts.DueDate
	}
	if opts.SetLabels {
		t.Labels = opts.Labels
	}
	t.UpdatedAt = e.now()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.TaskUpdated, t.ProjectID, "task", t.ID, actorID, nil)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) CompleteTask(ctx context.Context, actorID, taskID string) (domain.Task, error) {
	return e.setCompletion(ctx, actorID, taskID, true)
}

func (e Engine) ReopenTask(ctx context.Context, actorID, taskID string) (domain.Task, error) {
	return e.setCompletion(ctx, actorID, taskID, false)
}

func (e Engine) setCompletion(ctx context.Context, actorID, taskID string, completed bool) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Completed == completed {
		return t, nil
	}
	now := e.now()
	t.Completed = completed
	t.UpdatedAt = now
	if completed {
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
	evtType := events.TaskCompleted
	if !completed {
		evtType = events.TaskReopened
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, evtType, t.ProjectID, "task", t.ID, actorID, nil)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes the task row and strips its ID from every section of its
// project.
func (e Engine) DeleteTask(ctx context.Context, actorID, taskID string) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	sections, err := e.Repo.ListSections(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	next := sections
	for _, s := range sections {
		next = order.RemoveTaskFromSection(taskID, s.ID, next)
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
			return err
		}
		if err := e.Repo.SaveSections(ctx, tx, sections, next); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.TaskDeleted, t.ProjectID, "task", taskID, actorID,
			events.EventPayload{"title": t.Title})
	})
}

// MoveTask places a task at toIndex within toSectionID. A move inside one
// section reorders in place; a move across sections removes from every other
// section first, then inserts. Indexes out of range clamp rather than fail.
func (e Engine) MoveTask(ctx context.Context, actorID, taskID, toSectionID string, toIndex int) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	sections, err := e.Repo.ListSections(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	if !sectionExists(sections, toSectionID) {
		return fmt.Errorf("section %s: %w", toSectionID, repo.ErrNotFound)
	}
	var next []domain.Section
	if inSection(sections, toSectionID, taskID) {
		next = order.MoveTaskWithinSection(toSectionID, taskID, toIndex, sections)
	} else {
		next = sections
		for _, s := range sections {
			if s.ID != toSectionID {
				next = order.RemoveTaskFromSection(taskID, s.ID, next)
			}
		}
		idx := toIndex
		next = order.AddTaskToSection(taskID, toSectionID, &idx, next)
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SaveSections(ctx, tx, sections, next); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.TaskMoved, t.ProjectID, "task", taskID, actorID,
			events.EventPayload{"section_id": toSectionID, "index": toIndex})
	})
}

// OrderedSectionTasks returns one section's tasks in display order.
func (e Engine) OrderedSectionTasks(ctx context.Context, sectionID string) ([]domain.Task, error) {
	s, err := e.Repo.GetSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: s.ProjectID})
	if err != nil {
		return nil, err
	}
	return order.OrderedTasksForSection(s, tasks), nil
}

// OrderedProjectTasks returns a project's tasks section by section, each
// section's run in its display order.
func (e Engine) OrderedProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return order.OrderedTasksForProject(projectID, tasks, []domain.Project{p}), nil
}

// --- labels ---

func (e Engine) CreateLabel(ctx context.Context, actorID, name, color string) (domain.Label, error) {
	if name == "" {
		return domain.Label{}, fmt.Errorf("label name is required")
	}
	l := domain.Label{
		ID:        uuid.NewString(),
		Name:      name,
		Color:     color,
		CreatedAt: e.now(),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertLabel(ctx, tx, l); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.LabelCreated, "", "label", l.ID, actorID, events.EventPayload{"name": name})
	})
	if err != nil {
		return domain.Label{}, err
	}
	return l, nil
}

func (e Engine) DeleteLabel(ctx context.Context, actorID, name string) error {
	l, err := e.Repo.GetLabelByName(ctx, name)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteLabel(ctx, tx, l.ID); err != nil {
			return err
		}
		return e.writer().Append(ctx, tx, events.LabelDeleted, "", "label", l.ID, actorID, events.EventPayload{"name": name})
	})
}

// --- api keys ---

// CreateAPIKey mints a key for actorID and returns the raw secret once; only
// its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	raw := "tt_" + uuid.NewString()
	k := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
		return domain.APIKey{}, "", err
	}
	return k, raw, nil
}

// --- helpers ---

func sectionExists(sections []domain.Section, id string) bool {
	for _, s := range sections {
		if s.ID == id {
			return true
		}
	}
	return false
}

func inSection(sections []domain.Section, sectionID, taskID string) bool {
	for _, s := range sections {
		if s.ID != sectionID {
			continue
		}
		for _, item := range s.Items {
			if item == taskID {
				return true
			}
		}
	}
	return false
}

func updatePayload(name, color *string) events.EventPayload {
	p := events.EventPayload{}
	if name != nil {
		p["name"] = *name
	}
	if color != nil {
		p["color"] = *color
	}
	return p
}
