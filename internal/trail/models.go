package trail

import (
	"errors"
	"fmt"
	"time"

	"backend-trailtracker/internal/shared/geo"
)

// ErrInvalid wraps every validation failure of a trail.
var ErrInvalid = errors.New("invalid trail")

type TrailType string

const (
	TypeTrek   TrailType = "Trek"
	TypeBike   TrailType = "Bike"
	TypeRun    TrailType = "Run"
	TypeKayak  TrailType = "Kayak"
	TypePaddle TrailType = "Paddle"
)

// TrailTypes lists every trail type in display order.
var TrailTypes = []TrailType{TypeTrek, TypeBike, TypeRun, TypeKayak, TypePaddle}

func (t TrailType) Glyph() string {
	switch t {
	case TypeTrek:
		return "🥾"
	case TypeBike:
		return "🚴"
	case TypeRun:
		return "🏃"
	case TypeKayak:
		return "🚣"
	case TypePaddle:
		return "🏄"
	}
	return ""
}

func (t TrailType) Valid() bool {
	return t.Glyph() != ""
}

func ParseTrailType(s string) (TrailType, error) {
	t := TrailType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown trail type %q", s)
	}
	return t, nil
}

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown visibility %q", s)
	}
	return v, nil
}

// Location is owned by its trail and has no identity of its own.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Trail struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	StartDate           time.Time  `json:"start_date"`
	EndDate             time.Time  `json:"end_date"`
	StartPoint          *Location  `json:"start_point"`
	EndPoint            *Location  `json:"end_point"`
	ElevationDifference float64    `json:"elevation_difference"`
	Visibility          Visibility `json:"visibility"`
	TrailType           TrailType  `json:"trail_type"`
	CreatorID           string     `json:"creator_id"`
	DistanceKm          float64    `json:"distance_km"`
	CreatedAt           time.Time  `json:"created_at"`
}

// New returns a private trek owned by creatorID with both endpoints at (0,0).
func New(creatorID string) Trail {
	now := time.Now()
	return Trail{
		StartDate:  now,
		EndDate:    now,
		StartPoint: &Location{},
		EndPoint:   &Location{},
		Visibility: VisibilityPrivate,
		TrailType:  TypeTrek,
		CreatorID:  creatorID,
	}
}

// Distance is the start to end distance in km, 0 when either endpoint is missing.
func (t Trail) Distance() float64 {
	if t.StartPoint == nil || t.EndPoint == nil {
		return 0
	}
	return geo.DistanceMeters(t.StartPoint.Latitude, t.StartPoint.Longitude, t.EndPoint.Latitude, t.EndPoint.Longitude) / 1000
}

func (t Trail) Validate() error {
	if t.CreatorID == "" {
		return fmt.Errorf("%w: creator_id required", ErrInvalid)
	}
	if !t.Visibility.Valid() {
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalid, t.Visibility)
	}
	if !t.TrailType.Valid() {
		return fmt.Errorf("%w: unknown trail type %q", ErrInvalid, t.TrailType)
	}
	return nil
}

func FormatDistance(km float64) string {
	return fmt.Sprintf("%.2f Kms", km)
}

// Patch carries the editable fields of a trail. Nil fields are left unchanged.
type Patch struct {
	Name                *string     `json:"name"`
	StartDate           *time.Time  `json:"start_date"`
	EndDate             *time.Time  `json:"end_date"`
	ElevationDifference *float64    `json:"elevation_difference"`
	Visibility          *Visibility `json:"visibility"`
	TrailType           *TrailType  `json:"trail_type"`
	StartPoint          *Location   `json:"start_point"`
	EndPoint            *Location   `json:"end_point"`
}

func (p Patch) Apply(t Trail) Trail {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.StartDate != nil {
		t.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		t.EndDate = *p.EndDate
	}
	if p.ElevationDifference != nil {
		t.ElevationDifference = *p.ElevationDifference
	}
	if p.Visibility != nil {
		t.Visibility = *p.Visibility
	}
	if p.TrailType != nil {
		t.TrailType = *p.TrailType
	}
	if p.StartPoint != nil {
		loc := *p.StartPoint
		t.StartPoint = &loc
	}
	if p.EndPoint != nil {
		loc := *p.EndPoint
		t.EndPoint = &loc
	}
	return t
}

// PublicFilter narrows the public trail search.
type PublicFilter struct {
	Name           string
	Type           TrailType
	ExcludeCreator string
}
