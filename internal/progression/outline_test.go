package progression

import (
	"errors"
	"slices"
	"testing"
)

func TestDefaultOutline_Valid(t *testing.T) {
	if err := DefaultOutline().Validate(); err != nil {
		t.Fatalf("default outline must validate: %v", err)
	}
}

func TestOutline_UnlockedBy(t *testing.T) {
	o := DefaultOutline()
	if got := o.UnlockedBy("1"); !slices.Equal(got, []string{"2"}) {
		t.Fatalf("quiz 1: expected [2], got %v", got)
	}
	if got := o.UnlockedBy("2"); !slices.Equal(got, []string{"3"}) {
		t.Fatalf("quiz 2: expected [3], got %v", got)
	}
	if got := o.UnlockedBy("3"); len(got) != 0 {
		t.Fatalf("quiz 3: expected nothing, got %v", got)
	}
}

func TestOutline_CompletedByFallsBackToSectionID(t *testing.T) {
	o := Outline{Sections: []SectionSpec{
		{ID: "intro", Quiz: "q-intro"},
		{ID: "grammar", Requires: []string{"q-intro"}},
	}}
	if id, ok := o.CompletedBy("q-intro"); !ok || id != "intro" {
		t.Fatalf("expected intro, got %q %v", id, ok)
	}
	// grammar declares no gate, so a quiz sharing its id completes it.
	if id, ok := o.CompletedBy("grammar"); !ok || id != "grammar" {
		t.Fatalf("expected grammar, got %q %v", id, ok)
	}
	if _, ok := o.CompletedBy("unknown"); ok {
		t.Fatal("unknown quiz must complete nothing")
	}
}

func TestOutline_Initial(t *testing.T) {
	o := Outline{Sections: []SectionSpec{
		{ID: "a", Quiz: "qa"},
		{ID: "b", Quiz: "qb"},
		{ID: "c", Requires: []string{"qa", "qb"}},
	}}
	p := o.Initial("x")
	if !p.Sections[0].Unlocked || !p.Sections[1].Unlocked || p.Sections[2].Unlocked {
		t.Fatalf("sections without prerequisites start unlocked, got %+v", p.Sections)
	}
}

func TestOutline_LessonTotal(t *testing.T) {
	cases := []struct {
		spec SectionSpec
		want int
	}{
		{SectionSpec{ID: "a"}, DefaultLessonCount},
		{SectionSpec{ID: "a", LessonCount: 5}, 5},
		{SectionSpec{ID: "a", LessonCount: 5, Lessons: []string{"x", "y"}}, 2},
	}
	for _, c := range cases {
		if got := c.spec.lessonTotal(); got != c.want {
			t.Fatalf("%+v: expected %d, got %d", c.spec, c.want, got)
		}
	}
}

func TestOutline_ValidateRejects(t *testing.T) {
	cases := map[string]Outline{
		"empty":         {},
		"blank id":      {Sections: []SectionSpec{{ID: ""}}},
		"duplicate id":  {Sections: []SectionSpec{{ID: "a"}, {ID: "a"}}},
		"shared gate":   {Sections: []SectionSpec{{ID: "a", Quiz: "q"}, {ID: "b", Quiz: "q"}}},
		"negative":      {Sections: []SectionSpec{{ID: "a", LessonCount: -1}}},
		"self cycle":    {Sections: []SectionSpec{{ID: "a", Quiz: "qa", Requires: []string{"qa"}}}},
		"unknown quiz":  {Sections: []SectionSpec{{ID: "a", Quiz: "qa"}, {ID: "b", Requires: []string{"qz"}}}},
		"two-way cycle": {Sections: []SectionSpec{{ID: "a", Quiz: "qa", Requires: []string{"qb"}}, {ID: "b", Quiz: "qb", Requires: []string{"qa"}}}},
	}
	for name, o := range cases {
		if err := o.Validate(); !errors.Is(err, ErrInvalidOutline) {
			t.Fatalf("%s: expected ErrInvalidOutline, got %v", name, err)
		}
	}
}

func TestPercent_RoundsHalfUp(t *testing.T) {
	cases := []struct{ part, whole, want int }{
		{0, 3, 0}, {1, 3, 33}, {2, 3, 67}, {3, 3, 100}, {1, 2, 50}, {1, 8, 13}, {5, 3, 100}, {1, 0, 0},
	}
	for _, c := range cases {
		if got := percent(c.part, c.whole); got != c.want {
			t.Fatalf("percent(%d,%d): expected %d, got %d", c.part, c.whole, c.want, got)
		}
	}
}
