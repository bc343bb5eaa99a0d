package model

import "time"

// Project is an ordered collection of tracks. Track order is insertion order
// and only display-significant. A project with zero tracks is valid (newly
// created, pending its first track).
type Project struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Tracks    []Track   `json:"tracks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"` // Monotonically bumped on every mutation
}

// ProjectSummary is the list-view projection of a project.
type ProjectSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary returns the list-view projection of p.
func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{ID: p.ID, Title: p.Title, UpdatedAt: p.UpdatedAt}
}

// FindTrack returns a pointer into p.Tracks for the given track ID, or nil.
func (p *Project) FindTrack(trackID string) *Track {
	for i := range p.Tracks {
		if p.Tracks[i].ID == trackID {
			return &p.Tracks[i]
		}
	}
	return nil
}

// ActiveTracks returns the non-muted tracks, preserving order.
func (p *Project) ActiveTracks() []Track {
	active := make([]Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if !t.IsMuted {
			active = append(active, t)
		}
	}
	return active
}
