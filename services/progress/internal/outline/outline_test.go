package outline

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/lems/internal/progression"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	o, err := Load("  ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(o.Sections) != 3 || o.Sections[1].Requires[0] != "1" {
		t.Fatalf("expected default outline, got %+v", o)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "outline.yaml", `
sections:
  - id: "intro"
    title: "المقدمة"
    quiz: "q-intro"
    lessons: ["l1", "l2"]
  - id: "grammar"
    quiz: "q-grammar"
    requires: ["q-intro"]
    lesson_count: 4
`)
	o, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(o.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(o.Sections))
	}
	g := o.Sections[1]
	if g.ID != "grammar" || g.LessonCount != 4 || len(g.Requires) != 1 || g.Requires[0] != "q-intro" {
		t.Fatalf("unexpected section: %+v", g)
	}
	if got := o.UnlockedBy("q-intro"); len(got) != 1 || got[0] != "grammar" {
		t.Fatalf("UnlockedBy(q-intro) = %v", got)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "outline.json", `{"sections":[{"id":"a","quiz":"a"},{"id":"b","requires":["a"]}]}`)
	o, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(o.Sections) != 2 || o.Sections[1].Requires[0] != "a" {
		t.Fatalf("unexpected outline: %+v", o)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "outline.toml", `
[[sections]]
id = "a"
quiz = "a"

[[sections]]
id = "b"
quiz = "b"
requires = ["a"]
`)
	o, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(o.Sections) != 2 || o.Sections[1].ID != "b" {
		t.Fatalf("unexpected outline: %+v", o)
	}
}

func TestLoad_RejectsCycle(t *testing.T) {
	path := writeFile(t, "outline.yaml", `
sections:
  - id: "a"
    quiz: "a"
    requires: ["b"]
  - id: "b"
    quiz: "b"
    requires: ["a"]
`)
	_, err := Load(path)
	if !errors.Is(err, progression.ErrInvalidOutline) {
		t.Fatalf("expected ErrInvalidOutline, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_ServedOutlineLoadsBack(t *testing.T) {
	want := progression.DefaultOutline()
	want.Sections[1].LessonCount = 7
	body, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	o, err := Load(writeFile(t, "served.json", string(body)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if o.Sections[1].LessonCount != 7 || o.Sections[2].Requires[0] != "2" {
		t.Fatalf("unexpected outline: %+v", o)
	}
}

func TestLoad_RejectsUnknownPrerequisite(t *testing.T) {
	path := writeFile(t, "outline.yaml", `
sections:
  - id: "a"
    quiz: "qa"
  - id: "b"
    requires: ["missing"]
`)
	_, err := Load(path)
	if !errors.Is(err, progression.ErrInvalidOutline) {
		t.Fatalf("expected ErrInvalidOutline, got %v", err)
	}
}
