package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasktrove/internal/config"
	"tasktrove/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,color,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, nullable(p.Color), p.CreatedAt)
	return err
}

// GetProject returns a project with its sections assembled in position order.
func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var color sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,color,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &color, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if color.Valid {
		p.Color = color.String
	}
	p.Sections, err = r.ListSections(ctx, p.ID)
	return p, err
}

func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM projects`)
	if err != nil {
		return domain.Project{}, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return domain.Project{}, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(ids) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return r.GetProject(ctx, ids[0])
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,color,created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var color sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &color, &p.CreatedAt); err != nil {
			return nil, err
		}
		if color.Valid {
			p.Color = color.String
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		sections, err := r.ListSections(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Sections = sections
	}
	return res, nil
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, name, color *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if color != nil {
		fields = append(fields, "color=?")
		args = append(args, nullable(*color))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- sections ---

func scanSection(s *domain.Section, itemsJSON string, color sql.NullString) error {
	if color.Valid {
		s.Color = color.String
	}
	s.Items = []string{}
	if itemsJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(itemsJSON), &s.Items); err != nil {
		return fmt.Errorf("section %s items: %w", s.ID, err)
	}
	if s.Items == nil {
		s.Items = []string{}
	}
	return nil
}

func (r Repo) InsertSection(ctx context.Context, tx *sql.Tx, s domain.Section) error {
	items := s.Items
	if items == nil {
		items = []string{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sections(id,project_id,name,color,position,items_json) VALUES (?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, nullable(s.Color), s.Position, string(itemsJSON))
	return err
}

func (r Repo) GetSection(ctx context.Context, id string) (domain.Section, error) {
	var s domain.Section
	var color sql.NullString
	var itemsJSON string
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,color,position,items_json FROM sections WHERE id=?`, id).
		Scan(&s.ID, &s.ProjectID, &s.Name, &color, &s.Position, &itemsJSON)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	return s, scanSection(&s, itemsJSON, color)
}

func (r Repo) ListSections(ctx context.Context, projectID string) ([]domain.Section, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,color,position,items_json FROM sections WHERE project_id=? ORDER BY position ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Section
	for rows.Next() {
		var s domain.Section
		var color sql.NullString
		var itemsJSON string
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &color, &s.Position, &itemsJSON); err != nil {
			return nil, err
		}
		if err := scanSection(&s, itemsJSON, color); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateSectionMeta(ctx context.Context, tx *sql.Tx, id string, name, color *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if color != nil {
		fields = append(fields, "color=?")
		args = append(args, nullable(*color))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE sections SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSectionItems persists one section's items list.
func (r Repo) SaveSectionItems(ctx context.Context, tx *sql.Tx, sectionID string, items []string) error {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE sections SET items_json=? WHERE id=?`, string(data), sectionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSections writes back every section whose items differ from prev. The
// ordering engine returns untouched sections unchanged, so comparing against
// the previous snapshot keeps writes to the sections an operation touched.
func (r Repo) SaveSections(ctx context.Context, tx *sql.Tx, prev, next []domain.Section) error {
	prevItems := make(map[string][]string, len(prev))
	for _, s := range prev {
		prevItems[s.ID] = s.Items
	}
	for _, s := range next {
		if itemsEqual(prevItems[s.ID], s.Items) {
			continue
		}
		if err := r.SaveSectionItems(ctx, tx, s.ID, s.Items); err != nil {
			return err
		}
	}
	return nil
}

func itemsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r Repo) DeleteSection(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) NextSectionPosition(ctx context.Context, projectID string) (int, error) {
	var pos sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(position) FROM sections WHERE project_id=?`, projectID).Scan(&pos)
	if err != nil {
		return 0, err
	}
	if !pos.Valid {
		return 0, nil
	}
	return int(pos.Int64) + 1, nil
}

// --- tasks ---

const taskColumns = `id,project_id,title,description,completed,priority,due_date,labels_json,created_at,updated_at,completed_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, dueDate, labelsJSON, completedAt sql.NullString
	var completed int
	err := scan(&t.ID, &t.ProjectID, &t.Title, &description, &completed, &t.Priority, &dueDate, &labelsJSON, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Completed = completed != 0
	if description.Valid {
		t.Description = description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	if labelsJSON.Valid && labelsJSON.String != "" {
		if err := json.Unmarshal([]byte(labelsJSON.String), &t.Labels); err != nil {
			return t, fmt.Errorf("task %s labels: %w", t.ID, err)
		}
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	labelsJSON, err := marshalStringSlice(t.Labels)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), boolInt(t.Completed), t.Priority,
		nullableStringPtr(t.DueDate), nullableStringPtr(labelsJSON), t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	labelsJSON, err := marshalStringSlice(t.Labels)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, completed=?, priority=?, due_date=?, labels_json=?, updated_at=?, completed_at=? WHERE id=?`,
		t.Title, nullable(t.Description), boolInt(t.Completed), t.Priority,
		nullableStringPtr(t.DueDate), nullableStringPtr(labelsJSON), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	ProjectID string
	Completed *bool
	Priority  int
	Label     string
	Limit     int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Completed != nil {
		clauses = append(clauses, "completed=?")
		args = append(args, boolInt(*f.Completed))
	}
	if f.Priority > 0 {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		if f.Label != "" && !containsString(t.Labels, f.Label) {
			continue
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksByCompletion(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT completed, count(*) FROM tasks WHERE project_id=? GROUP BY completed`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var completed, count int
		if err := rows.Scan(&completed, &count); err != nil {
			return nil, err
		}
		if completed != 0 {
			res["completed"] = count
		} else {
			res["active"] = count
		}
	}
	return res, rows.Err()
}

// --- labels ---

func (r Repo) InsertLabel(ctx context.Context, tx *sql.Tx, l domain.Label) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO labels(id,name,color,created_at) VALUES (?,?,?,?)`,
		l.ID, l.Name, nullable(l.Color), l.CreatedAt)
	return err
}

func (r Repo) ListLabels(ctx context.Context) ([]domain.Label, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,color,created_at FROM labels ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Label
	for rows.Next() {
		var l domain.Label
		var color sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &color, &l.CreatedAt); err != nil {
			return nil, err
		}
		if color.Valid {
			l.Color = color.String
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) GetLabelByName(ctx context.Context, name string) (domain.Label, error) {
	var l domain.Label
	var color sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,color,created_at FROM labels WHERE name=?`, name).
		Scan(&l.ID, &l.Name, &color, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if color.Valid {
		l.Color = color.String
	}
	return l, err
}

func (r Repo) DeleteLabel(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- project config ---

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg)
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg)
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, projectID, string(payload), now, now)
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return &cfg, cfg.Validate()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, projectID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a project.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE project_id=?`, projectID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func containsString(in []string, v string) bool {
	for _, s := range in {
		if s == v {
			return true
		}
	}
	return false
}
