package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"melodizr/model"
)

// ProjectRepository defines the interface for project data operations.
// Tracks are stored denormalized as a JSON column so a whole project loads
// and saves atomically in a single row.
type ProjectRepository interface {
	CreateProject(project *model.Project) error
	GetProjectByID(id string) (*model.Project, error)
	GetProjectSummariesByUserID(userID int64) ([]model.ProjectSummary, error)
	SaveProject(project *model.Project) error
	RenameProject(id string, title string) error
	DeleteProject(id string) error
}

// mysqlProjectRepository implements ProjectRepository for MySQL.
type mysqlProjectRepository struct {
	db *sql.DB
}

// NewMySQLProjectRepository creates a new mysqlProjectRepository.
func NewMySQLProjectRepository(db *sql.DB) ProjectRepository {
	return &mysqlProjectRepository{db: db}
}

// CreateProject inserts a new project. An empty track list is stored as [].
func (r *mysqlProjectRepository) CreateProject(project *model.Project) error {
	tracksJSON, err := marshalTracks(project.Tracks)
	if err != nil {
		return err
	}

	query := "INSERT INTO projects (id, user_id, title, tracks, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare create project statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	_, err = stmt.Exec(project.ID, project.UserID, project.Title, tracksJSON, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute create project statement: %w", err)
	}
	return nil
}

// GetProjectByID retrieves a full project including its track list.
func (r *mysqlProjectRepository) GetProjectByID(id string) (*model.Project, error) {
	query := "SELECT id, user_id, title, tracks, created_at, updated_at FROM projects WHERE id = ?"
	row := r.db.QueryRow(query, id)

	project := &model.Project{}
	var tracksJSON []byte
	err := row.Scan(&project.ID, &project.UserID, &project.Title, &tracksJSON, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Project not found
		}
		return nil, fmt.Errorf("failed to scan project row for ID %s: %w", id, err)
	}

	if err := json.Unmarshal(tracksJSON, &project.Tracks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tracks for project %s: %w", id, err)
	}
	return project, nil
}

// GetProjectSummariesByUserID retrieves the list view of a user's projects,
// newest first.
func (r *mysqlProjectRepository) GetProjectSummariesByUserID(userID int64) ([]model.ProjectSummary, error) {
	query := "SELECT id, title, updated_at FROM projects WHERE user_id = ? ORDER BY updated_at DESC"
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects for user ID %d: %w", userID, err)
	}
	defer rows.Close()

	summaries := make([]model.ProjectSummary, 0)
	for rows.Next() {
		var s model.ProjectSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetProjectSummariesByUserID: %w", err)
	}
	return summaries, nil
}

// SaveProject replaces the stored track list and bumps updated_at.
func (r *mysqlProjectRepository) SaveProject(project *model.Project) error {
	tracksJSON, err := marshalTracks(project.Tracks)
	if err != nil {
		return err
	}

	query := "UPDATE projects SET title = ?, tracks = ?, updated_at = ? WHERE id = ?"
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare save project statement: %w", err)
	}
	defer stmt.Close()

	project.UpdatedAt = time.Now()
	_, err = stmt.Exec(project.Title, tracksJSON, project.UpdatedAt, project.ID)
	if err != nil {
		return fmt.Errorf("failed to execute save project statement for ID %s: %w", project.ID, err)
	}
	return nil
}

// RenameProject updates a project's title.
func (r *mysqlProjectRepository) RenameProject(id string, title string) error {
	query := "UPDATE projects SET title = ?, updated_at = ? WHERE id = ?"
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare rename project statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(title, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to execute rename project statement for ID %s: %w", id, err)
	}
	return nil
}

// DeleteProject removes a project row. Track files and library rows are not
// touched; the track library outlives its projects.
func (r *mysqlProjectRepository) DeleteProject(id string) error {
	query := "DELETE FROM projects WHERE id = ?"
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare delete project statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(id)
	if err != nil {
		return fmt.Errorf("failed to execute delete project statement for ID %s: %w", id, err)
	}
	return nil
}

func marshalTracks(tracks []model.Track) ([]byte, error) {
	if tracks == nil {
		tracks = []model.Track{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal project tracks: %w", err)
	}
	return data, nil
}
