package progression

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt marks a stored blob that cannot be decoded into progress records.
var ErrCorrupt = errors.New("corrupt progress blob")

// Encode serializes the course map as a single JSON object keyed by course id.
func Encode(courses map[string]CourseProgress) ([]byte, error) {
	if courses == nil {
		courses = map[string]CourseProgress{}
	}
	return json.Marshal(courses)
}

// Decode parses a blob written by Encode. Records missing their course id get
// the map key; records with blank section ids are rejected.
func Decode(blob []byte) (map[string]CourseProgress, error) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 || bytes.Equal(blob, []byte("null")) {
		return map[string]CourseProgress{}, nil
	}

	var courses map[string]CourseProgress
	if err := json.Unmarshal(blob, &courses); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if courses == nil {
		courses = map[string]CourseProgress{}
	}
	for id, p := range courses {
		if p.CourseID == "" {
			p.CourseID = id
		}
		if p.CourseID != id {
			return nil, fmt.Errorf("%w: record %q stored under key %q", ErrCorrupt, p.CourseID, id)
		}
		for _, s := range p.Sections {
			if s.SectionID == "" {
				return nil, fmt.Errorf("%w: course %q has a section without id", ErrCorrupt, id)
			}
		}
		courses[id] = p.Clone()
	}
	return courses, nil
}
