package profile

import (
	"fmt"

	"backend-trailtracker/internal/trail"
)

// Profile holds a user's tagged trail ids. The collections are append-only
// and keep duplicates in insertion order.
type Profile struct {
	ID           string   `json:"id"`
	IdentifierID string   `json:"identifier_id"`
	Favourites   []string `json:"favourites"`
	WantsToDo    []string `json:"wants_to_do"`
	Done         []string `json:"done"`
}

type Tag string

const (
	TagFavourite Tag = "favourite"
	TagWantsToDo Tag = "wantsToDo"
	TagDone      Tag = "done"
)

func ParseTag(s string) (Tag, error) {
	t := Tag(s)
	if t.column() == "" {
		return "", fmt.Errorf("unknown tag %q", s)
	}
	return t, nil
}

func (t Tag) column() string {
	switch t {
	case TagFavourite:
		return "favourites"
	case TagWantsToDo:
		return "wants_to_do"
	case TagDone:
		return "done"
	}
	return ""
}

// Collections is a profile with every trail id resolved.
type Collections struct {
	Favourites []trail.Trail `json:"favourites"`
	WantsToDo  []trail.Trail `json:"wants_to_do"`
	Done       []trail.Trail `json:"done"`
}
