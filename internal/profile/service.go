package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backend-trailtracker/internal/db"
	"backend-trailtracker/internal/stream"
	"backend-trailtracker/internal/trail"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("profile not found")

type Service struct {
	db     db.Pool
	trails *trail.Service
	hub    *stream.Hub
}

func NewService(db db.Pool, trails *trail.Service, hub *stream.Hub) *Service {
	return &Service{db: db, trails: trails, hub: hub}
}

// Ensure returns the profile of identifierID, creating an empty one first
// if none exists.
func (s *Service) Ensure(ctx context.Context, identifierID string) (Profile, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (id, identifier_id)
		VALUES ($1,$2)
		ON CONFLICT (identifier_id) DO NOTHING
	`, uuid.NewString(), identifierID)
	if err != nil {
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return s.Get(ctx, identifierID)
}

func (s *Service) Get(ctx context.Context, identifierID string) (Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, identifier_id, favourites, wants_to_do, done
		FROM profiles WHERE identifier_id=$1
	`, identifierID)

	var p Profile
	err := row.Scan(&p.ID, &p.IdentifierID, &p.Favourites, &p.WantsToDo, &p.Done)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// TagTrail appends t.ID to the tag's collection on the profile whose
// identifier matches the trail's creator. It reports false, without error,
// when that profile does not exist.
func (s *Service) TagTrail(ctx context.Context, t trail.Trail, tag Tag) (bool, error) {
	column := tag.column()
	if column == "" {
		return false, fmt.Errorf("unknown tag %q", tag)
	}

	var profileID string
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		err := q.QueryRow(ctx, `
			SELECT id FROM profiles WHERE identifier_id=$1 FOR UPDATE
		`, t.CreatorID).Scan(&profileID)
		if errors.Is(err, pgx.ErrNoRows) {
			profileID = ""
			return nil
		}
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}

		_, err = q.Exec(ctx, `UPDATE profiles SET `+column+` = array_append(`+column+`, $2) WHERE id=$1`, profileID, t.ID)
		if err != nil {
			return fmt.Errorf("tag trail: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if profileID == "" {
		slog.Debug("no profile for trail creator, tag skipped", "trail_id", t.ID, "creator_id", t.CreatorID)
		return false, nil
	}

	slog.Info("trail tagged", "trail_id", t.ID, "tag", string(tag), "profile_id", profileID)
	s.publish(t.CreatorID, profileID)
	return true, nil
}

// TaggedTrails resolves the three collections of identifierID's profile.
func (s *Service) TaggedTrails(ctx context.Context, identifierID string) (Collections, error) {
	p, err := s.Ensure(ctx, identifierID)
	if err != nil {
		return Collections{}, err
	}

	var out Collections
	if out.Favourites, err = s.trails.ListByIDs(ctx, p.Favourites); err != nil {
		return Collections{}, err
	}
	if out.WantsToDo, err = s.trails.ListByIDs(ctx, p.WantsToDo); err != nil {
		return Collections{}, err
	}
	if out.Done, err = s.trails.ListByIDs(ctx, p.Done); err != nil {
		return Collections{}, err
	}
	return out, nil
}

func (s *Service) publish(identifierID, profileID string) {
	if s.hub == nil {
		return
	}
	payload, _ := json.Marshal(stream.Change{Kind: "profile", ID: profileID, At: time.Now()})
	s.hub.Broadcast(stream.ProfileTopic(identifierID), payload)
}
