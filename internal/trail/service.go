package trail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"backend-trailtracker/internal/db"
	"backend-trailtracker/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound  = errors.New("trail not found")
	ErrForbidden = errors.New("only the creator can edit this trail")
)

const selectTrail = `
	SELECT id, name, start_date, end_date,
	       ST_Y(start_point::geometry), ST_X(start_point::geometry),
	       ST_Y(end_point::geometry), ST_X(end_point::geometry),
	       elevation_difference, visibility, trail_type, creator_id, created_at
	FROM trails`

type Service struct {
	db  db.Pool
	hub *stream.Hub
}

func NewService(db db.Pool, hub *stream.Hub) *Service {
	return &Service{db: db, hub: hub}
}

func (s *Service) CreateTrail(ctx context.Context, input Trail) (Trail, error) {
	if err := input.Validate(); err != nil {
		return Trail{}, err
	}
	input.ID = uuid.NewString()

	row := s.db.QueryRow(ctx, `
		INSERT INTO trails (id, name, start_date, end_date, start_point, end_point, elevation_difference, visibility, trail_type, creator_id)
		VALUES ($1,$2,$3,$4,
		        ST_SetSRID(ST_MakePoint($5,$6), 4326)::geography,
		        ST_SetSRID(ST_MakePoint($7,$8), 4326)::geography,
		        $9,$10,$11,$12)
		RETURNING created_at
	`, input.ID, input.Name, input.StartDate, input.EndDate,
		lngOf(input.StartPoint), latOf(input.StartPoint),
		lngOf(input.EndPoint), latOf(input.EndPoint),
		input.ElevationDifference, string(input.Visibility), string(input.TrailType), input.CreatorID)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Trail{}, fmt.Errorf("insert trail: %w", err)
	}
	input.DistanceKm = input.Distance()

	slog.Info("trail created", "trail_id", input.ID, "creator_id", input.CreatorID)
	s.publish(input, false)
	return input, nil
}

func (s *Service) GetTrail(ctx context.Context, id string) (Trail, error) {
	return getTrail(ctx, s.db, selectTrail+` WHERE id=$1`, id)
}

// GetVisibleTrail returns the trail only if viewerID may see it.
func (s *Service) GetVisibleTrail(ctx context.Context, id, viewerID string) (Trail, error) {
	t, err := s.GetTrail(ctx, id)
	if err != nil {
		return Trail{}, err
	}
	if t.Visibility != VisibilityPublic && t.CreatorID != viewerID {
		return Trail{}, ErrNotFound
	}
	return t, nil
}

// UpdateTrail applies patch inside a transaction. Only the creator may edit.
func (s *Service) UpdateTrail(ctx context.Context, id, editorID string, patch Patch) (Trail, error) {
	var before, after Trail
	err := db.WithTx(ctx, s.db, func(q db.Querier) error {
		var err error
		before, err = getTrail(ctx, q, selectTrail+` WHERE id=$1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if before.CreatorID != editorID {
			return ErrForbidden
		}

		after = patch.Apply(before)
		if err := after.Validate(); err != nil {
			return err
		}

		_, err = q.Exec(ctx, `
			UPDATE trails
			SET name=$2, start_date=$3, end_date=$4,
			    start_point=ST_SetSRID(ST_MakePoint($5,$6), 4326)::geography,
			    end_point=ST_SetSRID(ST_MakePoint($7,$8), 4326)::geography,
			    elevation_difference=$9, visibility=$10, trail_type=$11
			WHERE id=$1
		`, after.ID, after.Name, after.StartDate, after.EndDate,
			lngOf(after.StartPoint), latOf(after.StartPoint),
			lngOf(after.EndPoint), latOf(after.EndPoint),
			after.ElevationDifference, string(after.Visibility), string(after.TrailType))
		if err != nil {
			return fmt.Errorf("update trail: %w", err)
		}
		return nil
	})
	if err != nil {
		return Trail{}, err
	}
	after.DistanceKm = after.Distance()

	s.publish(after, before.Visibility == VisibilityPublic)
	return after, nil
}

func (s *Service) SetStartPoint(ctx context.Context, id, editorID string, loc Location) (Trail, error) {
	return s.UpdateTrail(ctx, id, editorID, Patch{StartPoint: &loc})
}

func (s *Service) SetEndPoint(ctx context.Context, id, editorID string, loc Location) (Trail, error) {
	return s.UpdateTrail(ctx, id, editorID, Patch{EndPoint: &loc})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Service) ListPublic(ctx context.Context, filter PublicFilter) ([]Trail, error) {
	return listTrails(ctx, s.db, selectTrail+`
		WHERE visibility='public'
		  AND ($1 = '' OR name ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR trail_type = $2)
		  AND ($3 = '' OR creator_id <> $3)
		ORDER BY start_date DESC
	`, likeEscaper.Replace(filter.Name), string(filter.Type), filter.ExcludeCreator)
}

func (s *Service) ListByCreator(ctx context.Context, creatorID string) ([]Trail, error) {
	return listTrails(ctx, s.db, selectTrail+`
		WHERE creator_id=$1
		ORDER BY start_date DESC
	`, creatorID)
}

// ListByIDs returns trails in the order of ids, repeating duplicates and
// skipping ids that no longer resolve.
func (s *Service) ListByIDs(ctx context.Context, ids []string) ([]Trail, error) {
	if len(ids) == 0 {
		return []Trail{}, nil
	}
	found, err := listTrails(ctx, s.db, selectTrail+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Trail, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	out := make([]Trail, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]Trail, error) {
	return listTrails(ctx, s.db, selectTrail+`
		WHERE visibility='public'
		  AND ST_DWithin(start_point, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3)
		ORDER BY start_date DESC
	`, lng, lat, radiusKm*1000)
}

func (s *Service) publish(t Trail, wasPublic bool) {
	if s.hub == nil {
		return
	}
	payload, _ := json.Marshal(stream.Change{Kind: "trail", ID: t.ID, At: time.Now()})
	s.hub.Broadcast(stream.CreatorTopic(t.CreatorID), payload)
	if wasPublic || t.Visibility == VisibilityPublic {
		s.hub.Broadcast(stream.TopicPublicTrails, payload)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrail(row scanner) (Trail, error) {
	var (
		t                     Trail
		startLat, startLng    *float64
		endLat, endLng        *float64
		visibility, trailType string
	)
	err := row.Scan(&t.ID, &t.Name, &t.StartDate, &t.EndDate,
		&startLat, &startLng, &endLat, &endLng,
		&t.ElevationDifference, &visibility, &trailType, &t.CreatorID, &t.CreatedAt)
	if err != nil {
		return Trail{}, err
	}
	t.StartPoint = locationOf(startLat, startLng)
	t.EndPoint = locationOf(endLat, endLng)
	t.Visibility = Visibility(visibility)
	t.TrailType = TrailType(trailType)
	t.DistanceKm = t.Distance()
	return t, nil
}

func getTrail(ctx context.Context, q db.Querier, sql string, args ...any) (Trail, error) {
	t, err := scanTrail(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Trail{}, ErrNotFound
	}
	if err != nil {
		return Trail{}, fmt.Errorf("load trail: %w", err)
	}
	return t, nil
}

func listTrails(ctx context.Context, q db.Querier, sql string, args ...any) ([]Trail, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query trails: %w", err)
	}
	defer rows.Close()

	trails := []Trail{}
	for rows.Next() {
		t, err := scanTrail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trail: %w", err)
		}
		trails = append(trails, t)
	}
	return trails, rows.Err()
}

func locationOf(lat, lng *float64) *Location {
	if lat == nil || lng == nil {
		return nil
	}
	return &Location{Latitude: *lat, Longitude: *lng}
}

func latOf(l *Location) *float64 {
	if l == nil {
		return nil
	}
	return &l.Latitude
}

func lngOf(l *Location) *float64 {
	if l == nil {
		return nil
	}
	return &l.Longitude
}
