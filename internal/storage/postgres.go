// Package storage persists parsed GPS tracks in PostgreSQL. Optional: the
// pipeline streams to stdout regardless, and only tees into the store when a
// DSN is configured.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bdougie/dash2gps/internal/models"
)

// TrackStore records one row per successfully parsed sample, keyed by the
// originating video.
type TrackStore struct {
	pool    *pgxpool.Pool
	videoID int
}

// Open connects, ensures the schema, and registers the video.
func Open(ctx context.Context, dsn, videoName string) (*TrackStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &TrackStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	videoID, err := store.getOrCreateVideo(ctx, videoName)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.videoID = videoID
	return store, nil
}

func (s *TrackStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *TrackStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS videos (
            id SERIAL PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(name)
        );

        CREATE TABLE IF NOT EXISTS track_points (
            id SERIAL PRIMARY KEY,
            video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
            sample_index INTEGER NOT NULL,
            offset_seconds DOUBLE PRECISION NOT NULL,
            latitude DOUBLE PRECISION NOT NULL,
            longitude DOUBLE PRECISION NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(video_id, sample_index)
        );

        CREATE INDEX IF NOT EXISTS idx_track_points_video_id ON track_points(video_id);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}
	return nil
}

// getOrCreateVideo gets an existing video entry or creates a new one.
func (s *TrackStore) getOrCreateVideo(ctx context.Context, videoName string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM videos WHERE name = $1",
		videoName).Scan(&id)

	if err == nil {
		return id, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("error checking for existing video: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		"INSERT INTO videos (name, created_at) VALUES ($1, $2) RETURNING id",
		videoName, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create video entry: %w", err)
	}
	return id, nil
}

// AddPoint stores one parsed sample. Only successful units carry a
// coordinate; callers must not pass failed units.
func (s *TrackStore) AddPoint(ctx context.Context, unit models.WorkUnit) error {
	if unit.Coord == nil {
		return fmt.Errorf("unit %d has no coordinate", unit.Index)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO track_points
        (video_id, sample_index, offset_seconds, latitude, longitude, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (video_id, sample_index) DO UPDATE
        SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude`,
		s.videoID, unit.Index, unit.Offset.Seconds(),
		unit.Coord.Lat, unit.Coord.Lon, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store track point: %w", err)
	}
	return nil
}
