package progression

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncode_UsesCourseKeyedLayout(t *testing.T) {
	blob, err := Encode(map[string]CourseProgress{"c": DefaultOutline().Initial("c")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec, ok := raw["c"]
	if !ok {
		t.Fatalf("expected course key, got %s", blob)
	}
	for _, field := range []string{"courseId", "sections", "overallProgress", "completedLessons", "quizResults"} {
		if _, ok := rec[field]; !ok {
			t.Fatalf("missing field %q in %s", field, blob)
		}
	}
}

func TestEncode_NilMap(t *testing.T) {
	blob, err := Encode(nil)
	if err != nil || string(blob) != "{}" {
		t.Fatalf("expected {}, got %s (%v)", blob, err)
	}
}

func TestDecode_Empty(t *testing.T) {
	for _, in := range []string{"", "  ", "null"} {
		got, err := Decode([]byte(in))
		if err != nil || len(got) != 0 {
			t.Fatalf("%q: expected empty map, got %v %v", in, got, err)
		}
	}
}

func TestDecode_FillsMissingCourseID(t *testing.T) {
	got, err := Decode([]byte(`{"c":{"sections":[{"sectionId":"1","unlocked":true}]}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := got["c"]
	if p.CourseID != "c" {
		t.Fatalf("expected course id from key, got %q", p.CourseID)
	}
	if p.QuizResults == nil || p.CompletedLessons == nil || p.Sections[0].LessonsCompleted == nil {
		t.Fatalf("collections must be non-nil after decode: %+v", p)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	cases := []string{
		`{nope`,
		`[1,2,3]`,
		`{"c":{"courseId":"other"}}`,
		`{"c":{"sections":[{"sectionId":""}]}}`,
	}
	for _, in := range cases {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: expected ErrCorrupt, got %v", in, err)
		}
	}
}
