package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tasktrove/internal/db"
	"tasktrove/internal/domain"
	"tasktrove/internal/engine"
	"tasktrove/internal/migrate"
	"tasktrove/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Project domain.Project
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, nil)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	p, err := eng.InitProject(ctx, "tester", "Test Project", nil)
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	cfg, err := eng.Repo.GetProjectConfig(ctx, p.ID)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	eng.Config = cfg
	return testEnv{Engine: eng, Ctx: ctx, Project: p}
}

func (env testEnv) mustCreateTask(t *testing.T, title, sectionID string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, "tester", engine.TaskCreateOptions{
		ProjectID: env.Project.ID,
		SectionID: sectionID,
		Title:     title,
	})
	if err != nil {
		t.Fatalf("create task %q: %v", title, err)
	}
	return task
}

func (env testEnv) sectionItems(t *testing.T, sectionID string) []string {
	t.Helper()
	s, err := env.Engine.Repo.GetSection(env.Ctx, sectionID)
	if err != nil {
		t.Fatalf("get section: %v", err)
	}
	return s.Items
}

func TestInitProjectSeedsDefaultSections(t *testing.T) {
	env := newTestEnv(t)
	if len(env.Project.Sections) != 3 {
		t.Fatalf("expected 3 default sections, got %d", len(env.Project.Sections))
	}
	names := []string{"Default", "In Progress", "Done"}
	for i, s := range env.Project.Sections {
		if s.Name != names[i] {
			t.Errorf("section %d: got %q, want %q", i, s.Name, names[i])
		}
		if s.Position != i {
			t.Errorf("section %q position: got %d, want %d", s.Name, s.Position, i)
		}
		if s.Items == nil || len(s.Items) != 0 {
			t.Errorf("section %q items: want empty, got %v", s.Name, s.Items)
		}
	}
}

func TestCreateTaskAppendsToFirstSection(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateTask(t, "first", "")
	b := env.mustCreateTask(t, "second", "")
	items := env.sectionItems(t, env.Project.Sections[0].ID)
	if len(items) != 2 || items[0] != a.ID || items[1] != b.ID {
		t.Fatalf("items = %v, want [%s %s]", items, a.ID, b.ID)
	}
}

func TestCreateTaskAtPosition(t *testing.T) {
	env := newTestEnv(t)
	sec := env.Project.Sections[0].ID
	a := env.mustCreateTask(t, "a", sec)
	b := env.mustCreateTask(t, "b", sec)
	pos := 1
	mid, err := env.Engine.CreateTask(env.Ctx, "tester", engine.TaskCreateOptions{
		ProjectID: env.Project.ID,
		SectionID: sec,
		Title:     "between",
		Position:  &pos,
	})
	if err != nil {
		t.Fatalf("create at position: %v", err)
	}
	items := env.sectionItems(t, sec)
	want := []string{a.ID, mid.ID, b.ID}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("items = %v, want %v", items, want)
		}
	}
}

func TestCreateTaskDefaultsPriority(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreateTask(t, "prio", "")
	if task.Priority != 4 {
		t.Fatalf("priority = %d, want 4", task.Priority)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, "tester", engine.TaskCreateOptions{
		ProjectID: env.Project.ID,
		Title:     "bad",
		Priority:  9,
	}); err == nil {
		t.Fatal("expected error for priority 9")
	}
}

func TestCreateTaskUnknownSection(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, "tester", engine.TaskCreateOptions{
		ProjectID: env.Project.ID,
		SectionID: "nope",
		Title:     "x",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMoveTaskWithinSection(t *testing.T) {
	env := newTestEnv(t)
	sec := env.Project.Sections[0].ID
	a := env.mustCreateTask(t, "a", sec)
	b := env.mustCreateTask(t, "b", sec)
	c := env.mustCreateTask(t, "c", sec)
	if err := env.Engine.MoveTask(env.Ctx, "tester", c.ID, sec, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	items := env.sectionItems(t, sec)
	want := []string{c.ID, a.ID, b.ID}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("items = %v, want %v", items, want)
		}
	}
}

func TestMoveTaskAcrossSections(t *testing.T) {
	env := newTestEnv(t)
	src := env.Project.Sections[0].ID
	dst := env.Project.Sections[1].ID
	a := env.mustCreateTask(t, "a", src)
	b := env.mustCreateTask(t, "b", src)
	if err := env.Engine.MoveTask(env.Ctx, "tester", a.ID, dst, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	srcItems := env.sectionItems(t, src)
	if len(srcItems) != 1 || srcItems[0] != b.ID {
		t.Fatalf("source items = %v, want [%s]", srcItems, b.ID)
	}
	dstItems := env.sectionItems(t, dst)
	if len(dstItems) != 1 || dstItems[0] != a.ID {
		t.Fatalf("dest items = %v, want [%s]", dstItems, a.ID)
	}
}

func TestMoveTaskClampsIndex(t *testing.T) {
	env := newTestEnv(t)
	sec := env.Project.Sections[0].ID
	a := env.mustCreateTask(t, "a", sec)
	b := env.mustCreateTask(t, "b", sec)
	if err := env.Engine.MoveTask(env.Ctx, "tester", a.ID, sec, 99); err != nil {
		t.Fatalf("move: %v", err)
	}
	items := env.sectionItems(t, sec)
	if items[len(items)-1] != a.ID {
		t.Fatalf("items = %v, want %s last", items, a.ID)
	}
	if err := env.Engine.MoveTask(env.Ctx, "tester", b.ID, sec, -3); err != nil {
		t.Fatalf("move negative: %v", err)
	}
	items = env.sectionItems(t, sec)
	if items[0] != b.ID {
		t.Fatalf("items = %v, want %s first", items, b.ID)
	}
}

func TestMoveTaskUnknownSection(t *testing.T) {
	env := newTestEnv(t)
	a := env.mustCreateTask(t, "a", "")
	err := env.Engine.MoveTask(env.Ctx, "tester", a.ID, "missing", 0)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteAndReopenTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreateTask(t, "done me", "")
	done, err := env.Engine.CompleteTask(env.Ctx, "tester", task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("task not marked complete: %+v", done)
	}
	// idempotent
	again, err := env.Engine.CompleteTask(env.Ctx, "tester", task.ID)
	if err != nil || !again.Completed {
		t.Fatalf("re-complete: %v", err)
	}
	reopened, err := env.Engine.ReopenTask(env.Ctx, "tester", task.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Completed || reopened.CompletedAt != nil {
		t.Fatalf("task still complete: %+v", reopened)
	}
}

func TestUpdateTaskFields(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreateTask(t, "old", "")
	title := "new"
	prio := 1
	due := "2025-07-01"
	updated, err := env.Engine.UpdateTask(env.Ctx, "tester", task.ID, engine.TaskUpdateOptions{
		Title:     &title,
		Priority:  &prio,
		DueDate:   &due,
		Labels:    []string{"home"},
		SetLabels: true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "new" || updated.Priority != 1 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.DueDate == nil || *updated.DueDate != due {
		t.Fatalf("due date not applied: %+v", updated.DueDate)
	}
	if len(updated.Labels) != 1 || updated.Labels[0] != "home" {
		t.Fatalf("labels = %v", updated.Labels)
	}
	cleared, err := env.Engine.UpdateTask(env.Ctx, "tester", task.ID, engine.TaskUpdateOptions{ClearDue: true})
	if err != nil {
		t.Fatalf("clear due: %v", err)
	}
	if cleared.DueDate != nil {
		t.Fatalf("due date not cleared: %v", *cleared.DueDate)
	}
}

func TestDeleteTaskStripsSectionItems(t *testing.T) {
	env := newTestEnv(t)
	sec := env.Project.Sections[0].ID
	a := env.mustCreateTask(t, "a", sec)
	b := env.mustCreateTask(t, "b", sec)
	if err := env.Engine.DeleteTask(env.Ctx, "tester", a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items := env.sectionItems(t, sec)
	if len(items) != 1 || items[0] != b.ID {
		t.Fatalf("items = %v, want [%s]", items, b.ID)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("task still present: %v", err)
	}
}

func TestDeleteSectionMovesTasks(t *testing.T) {
	env := newTestEnv(t)
	src := env.Project.Sections[1].ID
	first := env.Project.Sections[0].ID
	keep := env.mustCreateTask(t, "keep", first)
	moved := env.mustCreateTask(t, "orphan", src)
	if err := env.Engine.DeleteSection(env.Ctx, "tester", src); err != nil {
		t.Fatalf("delete section: %v", err)
	}
	items := env.sectionItems(t, first)
	want := []string{keep.ID, moved.ID}
	if len(items) != 2 || items[0] != want[0] || items[1] != want[1] {
		t.Fatalf("items = %v, want %v", items, want)
	}
}

func TestDeleteLastSectionRefused(t *testing.T) {
	env := newTestEnv(t)
	for _, s := range env.Project.Sections[1:] {
		if err := env.Engine.DeleteSection(env.Ctx, "tester", s.ID); err != nil {
			t.Fatalf("delete %s: %v", s.Name, err)
		}
	}
	if err := env.Engine.DeleteSection(env.Ctx, "tester", env.Project.Sections[0].ID); err == nil {
		t.Fatal("expected refusal deleting the last section")
	}
}

func TestOrderedSectionAndProjectTasks(t *testing.T) {
	env := newTestEnv(t)
	first := env.Project.Sections[0].ID
	second := env.Project.Sections[1].ID
	a := env.mustCreateTask(t, "a", first)
	b := env.mustCreateTask(t, "b", second)
	c := env.mustCreateTask(t, "c", first)

	tasks, err := env.Engine.OrderedSectionTasks(env.Ctx, first)
	if err != nil {
		t.Fatalf("section tasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != a.ID || tasks[1].ID != c.ID {
		t.Fatalf("section order = %v", taskIDs(tasks))
	}

	all, err := env.Engine.OrderedProjectTasks(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("project tasks: %v", err)
	}
	want := []string{a.ID, c.ID, b.ID}
	got := taskIDs(all)
	if len(got) != len(want) {
		t.Fatalf("project order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("project order = %v, want %v", got, want)
		}
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	task := env.mustCreateTask(t, "tracked", "")
	if _, err := env.Engine.CompleteTask(env.Ctx, "tester", task.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, env.Project.ID, "", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(evts))
	}
	if evts[0].Type != "task.completed" {
		t.Fatalf("latest event = %s, want task.completed", evts[0].Type)
	}
	if evts[0].ActorID != "tester" {
		t.Fatalf("actor = %s", evts[0].ActorID)
	}
}

func TestLabels(t *testing.T) {
	env := newTestEnv(t)
	l, err := env.Engine.CreateLabel(env.Ctx, "tester", "home", "#abc")
	if err != nil {
		t.Fatalf("create label: %v", err)
	}
	labels, err := env.Engine.Repo.ListLabels(env.Ctx)
	if err != nil || len(labels) != 1 || labels[0].ID != l.ID {
		t.Fatalf("list labels: %v %v", labels, err)
	}
	if err := env.Engine.DeleteLabel(env.Ctx, "tester", "home"); err != nil {
		t.Fatalf("delete label: %v", err)
	}
	labels, _ = env.Engine.Repo.ListLabels(env.Ctx)
	if len(labels) != 0 {
		t.Fatalf("label not deleted: %v", labels)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	k, raw, err := env.Engine.CreateAPIKey(env.Ctx, "tester", "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != k.ID || got.ActorID != "tester" {
		t.Fatalf("mismatch: %+v", got)
	}
}

func taskIDs(tasks []domain.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
