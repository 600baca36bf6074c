package order_test

import (
	"errors"
	"reflect"
	"testing"

	"tasktrove/internal/domain"
	"tasktrove/internal/order"
)

func section(id string, items ...string) domain.Section {
	return domain.Section{ID: id, ProjectID: "p1", Name: id, Items: items}
}

func task(id, projectID string) domain.Task {
	return domain.Task{ID: id, ProjectID: projectID, Title: "task " + id}
}

func items(sections []domain.Section, id string) []string {
	for _, s := range sections {
		if s.ID == id {
			return s.Items
		}
	}
	return nil
}

func TestOrderedTasksForSection(t *testing.T) {
	tasks := []domain.Task{task("B", "p1"), task("A", "p1"), task("C", "p1")}
	got := order.OrderedTasksForSection(section("S1", "A", "B", "C"), tasks)
	ids := taskIDs(got)
	if !reflect.DeepEqual(ids, []string{"A", "B", "C"}) {
		t.Fatalf("expected items order preserved, got %v", ids)
	}
}

func TestOrderedTasksForSectionDropsStaleIDs(t *testing.T) {
	tasks := []domain.Task{task("A", "p1")}
	got := order.OrderedTasksForSection(section("S1", "A", "deleted", "gone"), tasks)
	if len(got) != 1 || got[0].ID != "A" {
		t.Fatalf("expected stale IDs dropped, got %v", taskIDs(got))
	}
}

func TestOrderedTasksForSectionKeepsDuplicates(t *testing.T) {
	// Duplicates in Items are a caller-side anomaly; reads do not dedupe.
	tasks := []domain.Task{task("A", "p1")}
	got := order.OrderedTasksForSection(section("S1", "A", "A"), tasks)
	if len(got) != 2 {
		t.Fatalf("expected duplicate preserved, got %v", taskIDs(got))
	}
}

func TestOrderedTasksForSectionEmpty(t *testing.T) {
	got := order.OrderedTasksForSection(section("S1"), nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", got)
	}
}

func TestOrderedTasksForProject(t *testing.T) {
	projects := []domain.Project{{
		ID: "p1",
		Sections: []domain.Section{
			section("S1", "A", "B"),
			section("S2", "C"),
		},
	}}
	tasks := []domain.Task{task("C", "p1"), task("A", "p1"), task("B", "p1")}
	got := order.OrderedTasksForProject("p1", tasks, projects)
	if !reflect.DeepEqual(taskIDs(got), []string{"A", "B", "C"}) {
		t.Fatalf("expected section-major order, got %v", taskIDs(got))
	}
}

func TestOrderedTasksForProjectFiltersForeignTasks(t *testing.T) {
	// "B" was reassigned to another project but still lingers in S1's items.
	projects := []domain.Project{{ID: "p1", Sections: []domain.Section{section("S1", "A", "B")}}}
	tasks := []domain.Task{task("A", "p1"), task("B", "p2")}
	got := order.OrderedTasksForProject("p1", tasks, projects)
	if !reflect.DeepEqual(taskIDs(got), []string{"A"}) {
		t.Fatalf("expected cross-project task filtered, got %v", taskIDs(got))
	}
}

func TestOrderedTasksForProjectUnknownProject(t *testing.T) {
	got := order.OrderedTasksForProject("nope", []domain.Task{task("A", "p1")}, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty list for unknown project, got %v", taskIDs(got))
	}
}

func TestMoveTaskWithinSectionToFront(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B")}
	got := order.MoveTaskWithinSection("S1", "B", 0, sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"B", "A"}) {
		t.Fatalf("expected [B A], got %v", items(got, "S1"))
	}
}

func TestMoveTaskWithinSectionToEnd(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B", "C")}
	got := order.MoveTaskWithinSection("S1", "A", 2, sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"B", "C", "A"}) {
		t.Fatalf("expected [B C A], got %v", items(got, "S1"))
	}
}

func TestMoveTaskWithinSectionIndexPastEnd(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B", "C")}
	got := order.MoveTaskWithinSection("S1", "A", 99, sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"B", "C", "A"}) {
		t.Fatalf("expected clamp to end, got %v", items(got, "S1"))
	}
}

func TestMoveTaskWithinSectionNegativeIndexClampsToFront(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B", "C")}
	got := order.MoveTaskWithinSection("S1", "C", -3, sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"C", "A", "B"}) {
		t.Fatalf("expected clamp to front, got %v", items(got, "S1"))
	}
}

func TestMoveTaskWithinSectionAbsentTaskNoop(t *testing.T) {
	sections := []domain.Section{section("S1", "A")}
	got := order.MoveTaskWithinSection("S1", "NOPE", 0, sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"A"}) {
		t.Fatalf("expected no-op for absent task, got %v", items(got, "S1"))
	}
}

func TestMoveTaskWithinSectionPreservesElementSet(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B", "C", "D")}
	for toIndex := 0; toIndex < 5; toIndex++ {
		got := order.MoveTaskWithinSection("S1", "B", toIndex, sections)
		moved := items(got, "S1")
		if len(moved) != 4 {
			t.Fatalf("toIndex=%d: length changed: %v", toIndex, moved)
		}
		seen := map[string]int{}
		for _, id := range moved {
			seen[id]++
		}
		for _, id := range []string{"A", "B", "C", "D"} {
			if seen[id] != 1 {
				t.Fatalf("toIndex=%d: element set changed: %v", toIndex, moved)
			}
		}
	}
}

func TestMoveTaskWithinSectionDoesNotTouchOtherSections(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B"), section("S2", "X", "Y")}
	got := order.MoveTaskWithinSection("S1", "B", 0, sections)
	if !reflect.DeepEqual(got[1], sections[1]) {
		t.Fatalf("expected S2 untouched, got %+v", got[1])
	}
}

func TestMoveTaskWithinSectionDoesNotMutateInput(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B", "C")}
	order.MoveTaskWithinSection("S1", "C", 0, sections)
	if !reflect.DeepEqual(sections[0].Items, []string{"A", "B", "C"}) {
		t.Fatalf("input mutated: %v", sections[0].Items)
	}
}

func TestAddTaskToSectionAtIndex(t *testing.T) {
	sections := []domain.Section{section("S1", "X", "Y")}
	pos := 1
	got := order.AddTaskToSection("Z", "S1", &pos, sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"X", "Z", "Y"}) {
		t.Fatalf("expected [X Z Y], got %v", items(got, "S1"))
	}
	// second identical call is a no-op
	again := order.AddTaskToSection("Z", "S1", &pos, got)
	if !reflect.DeepEqual(items(again, "S1"), []string{"X", "Z", "Y"}) {
		t.Fatalf("expected idempotent add, got %v", items(again, "S1"))
	}
}

func TestAddTaskToSectionAppendsByDefault(t *testing.T) {
	sections := []domain.Section{section("S1", "X", "Y")}
	got := order.AddTaskToSection("Z", "S1", nil, sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"X", "Y", "Z"}) {
		t.Fatalf("expected append, got %v", items(got, "S1"))
	}
}

func TestAddTaskToSectionNegativePositionInsertsAtStart(t *testing.T) {
	for _, pos := range []int{-1, -5} {
		sections := []domain.Section{section("S1", "X", "Y")}
		p := pos
		got := order.AddTaskToSection("Z", "S1", &p, sections)
		if !reflect.DeepEqual(items(got, "S1"), []string{"Z", "X", "Y"}) {
			t.Fatalf("position=%d: expected [Z X Y], got %v", pos, items(got, "S1"))
		}
	}
}

func TestAddTaskToSectionUnknownSectionNoop(t *testing.T) {
	sections := []domain.Section{section("S1", "X")}
	got := order.AddTaskToSection("Z", "NOPE", nil, sections)
	if !reflect.DeepEqual(got, sections) {
		t.Fatalf("expected no-op for unknown section, got %+v", got)
	}
}

func TestRemoveTaskFromSection(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B", "C")}
	got := order.RemoveTaskFromSection("B", "S1", sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"A", "C"}) {
		t.Fatalf("expected [A C], got %v", items(got, "S1"))
	}
	// removing again is a no-op
	again := order.RemoveTaskFromSection("B", "S1", got)
	if !reflect.DeepEqual(items(again, "S1"), []string{"A", "C"}) {
		t.Fatalf("expected idempotent remove, got %v", items(again, "S1"))
	}
}

func TestRemoveTaskFromSectionRemovesAllOccurrences(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B", "A", "C", "A")}
	got := order.RemoveTaskFromSection("A", "S1", sections)
	if !reflect.DeepEqual(items(got, "S1"), []string{"B", "C"}) {
		t.Fatalf("expected every occurrence removed, got %v", items(got, "S1"))
	}
}

func TestAddThenRemoveRoundTrip(t *testing.T) {
	sections := []domain.Section{section("S1", "A", "B", "C")}
	pos := 1
	added := order.AddTaskToSection("Z", "S1", &pos, sections)
	restored := order.RemoveTaskFromSection("Z", "S1", added)
	if !reflect.DeepEqual(items(restored, "S1"), []string{"A", "B", "C"}) {
		t.Fatalf("expected round-trip restore, got %v", items(restored, "S1"))
	}
}

func TestOperationsLeaveOtherSectionsDeepEqual(t *testing.T) {
	base := []domain.Section{section("S1", "A", "B"), section("S2", "X"), section("S3")}
	pos := 0
	cases := map[string][]domain.Section{
		"move":   order.MoveTaskWithinSection("S1", "B", 0, base),
		"add":    order.AddTaskToSection("Z", "S1", &pos, base),
		"remove": order.RemoveTaskFromSection("A", "S1", base),
	}
	for name, got := range cases {
		if !reflect.DeepEqual(got[1], base[1]) || !reflect.DeepEqual(got[2], base[2]) {
			t.Fatalf("%s: non-target sections changed", name)
		}
	}
}

func TestRetiredProjectOrderFails(t *testing.T) {
	if _, err := order.ProjectTaskOrder("p1", nil); !errors.Is(err, order.ErrProjectOrderRetired) {
		t.Fatalf("expected ErrProjectOrderRetired, got %v", err)
	}
	if _, err := order.MoveTaskInProjectOrder("p1", "A", 0, nil); !errors.Is(err, order.ErrProjectOrderRetired) {
		t.Fatalf("expected ErrProjectOrderRetired, got %v", err)
	}
}

func taskIDs(tasks []domain.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
