package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"melodizr/model"
)

// TrackRepository defines the interface for the project-independent track
// library. Every converted track lands here as well as in its project, so a
// user can pull past conversions into new projects.
type TrackRepository interface {
	CreateTrack(track *model.Track) error
	GetTrackByID(id string) (*model.Track, error)
	GetAllTracksByUserID(userID int64) ([]*model.Track, error)
	DeleteTrack(id string) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{db: db}
}

// CreateTrack adds a new track to the library.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) error {
	var settingsJSON []byte
	if track.PlaybackSettings != nil {
		var err error
		settingsJSON, err = json.Marshal(track.PlaybackSettings)
		if err != nil {
			return fmt.Errorf("failed to marshal playback settings: %w", err)
		}
	}

	query := `INSERT INTO tracks (id, user_id, title, uri, duration_millis, original_voice_id, playback_settings, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now()
	}
	_, err = stmt.Exec(track.ID, track.UserID, track.Title, track.URI, track.DurationMillis,
		nullableString(track.OriginalVoiceID), settingsJSON, track.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	log.Printf("Track created with ID: %s, Title: %s", track.ID, track.Title)
	return nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id string) (*model.Track, error) {
	query := `SELECT id, user_id, title, uri, duration_millis, original_voice_id, playback_settings, created_at
	           FROM tracks WHERE id = ?`
	return scanTrack(r.db.QueryRow(query, id))
}

// GetAllTracksByUserID retrieves a user's track library, newest first.
func (r *mysqlTrackRepository) GetAllTracksByUserID(userID int64) ([]*model.Track, error) {
	query := `SELECT id, user_id, title, uri, duration_millis, original_voice_id, playback_settings, created_at
	           FROM tracks WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllTracksByUserID: %w", err)
	}
	return tracks, nil
}

// DeleteTrack removes a track from the library. Projects referencing it keep
// their embedded copy.
func (r *mysqlTrackRepository) DeleteTrack(id string) error {
	query := `DELETE FROM tracks WHERE id = ?`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for DeleteTrack: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(id)
	if err != nil {
		return fmt.Errorf("failed to execute DeleteTrack for ID %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row rowScanner) (*model.Track, error) {
	track := &model.Track{}
	var originalVoiceID sql.NullString
	var settingsJSON []byte
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.URI, &track.DurationMillis,
		&originalVoiceID, &settingsJSON, &track.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track row: %w", err)
	}
	track.OriginalVoiceID = originalVoiceID.String
	if len(settingsJSON) > 0 {
		track.PlaybackSettings = &model.PlaybackSettings{}
		if err := json.Unmarshal(settingsJSON, track.PlaybackSettings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal playback settings for track %s: %w", track.ID, err)
		}
	}
	return track, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
