package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"melodizr/model"
)

// fakeProjectRepo keeps projects in memory and records which mutation path
// each handler takes.
type fakeProjectRepo struct {
	projects map[string]*model.Project
	renames  map[string]string
	saves    int
}

func newFakeProjectRepo(projects ...*model.Project) *fakeProjectRepo {
	r := &fakeProjectRepo{
		projects: make(map[string]*model.Project),
		renames:  make(map[string]string),
	}
	for _, p := range projects {
		r.projects[p.ID] = p
	}
	return r
}

func (r *fakeProjectRepo) CreateProject(p *model.Project) error {
	r.projects[p.ID] = p
	return nil
}

func (r *fakeProjectRepo) GetProjectByID(id string) (*model.Project, error) {
	return r.projects[id], nil
}

func (r *fakeProjectRepo) GetProjectSummariesByUserID(userID int64) ([]model.ProjectSummary, error) {
	var out []model.ProjectSummary
	for _, p := range r.projects {
		if p.UserID == userID {
			out = append(out, p.Summary())
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) SaveProject(p *model.Project) error {
	r.saves++
	r.projects[p.ID] = p
	return nil
}

func (r *fakeProjectRepo) RenameProject(id string, title string) error {
	r.renames[id] = title
	if p, ok := r.projects[id]; ok {
		p.Title = title
	}
	return nil
}

func (r *fakeProjectRepo) DeleteProject(id string) error {
	delete(r.projects, id)
	return nil
}

func TestRenameProjectUsesRenamePath(t *testing.T) {
	repo := newFakeProjectRepo(&model.Project{ID: "p1", UserID: 7, Title: "Old name"})
	h := newTestHandler(t)
	h.projectRepo = repo

	req := authedRequest(http.MethodPut, "/api/projects/p1/title", []byte(`{"title":"New name"}`), 7)
	req = mux.SetURLVars(req, map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	h.RenameProjectHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "New name", repo.renames["p1"])
	assert.Zero(t, repo.saves, "rename must not rewrite the track list")
	assert.Contains(t, rec.Body.String(), `"New name"`)
}

func TestRenameProjectRequiresTitle(t *testing.T) {
	repo := newFakeProjectRepo(&model.Project{ID: "p1", UserID: 7, Title: "Old name"})
	h := newTestHandler(t)
	h.projectRepo = repo

	req := authedRequest(http.MethodPut, "/api/projects/p1/title", []byte(`{}`), 7)
	req = mux.SetURLVars(req, map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	h.RenameProjectHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.renames)
}

func TestRenameProjectEnforcesOwnership(t *testing.T) {
	repo := newFakeProjectRepo(&model.Project{ID: "p1", UserID: 7, Title: "Old name"})
	h := newTestHandler(t)
	h.projectRepo = repo

	req := authedRequest(http.MethodPut, "/api/projects/p1/title", []byte(`{"title":"Stolen"}`), 8)
	req = mux.SetURLVars(req, map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	h.RenameProjectHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Old name", repo.projects["p1"].Title)
}
