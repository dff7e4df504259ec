package orchestrator

import (
	"context"
	"sort"
	"sync"

	"ai-web-studio/internal/models"
)

// memStore mirrors the transactional contract of the postgres store.
type memStore struct {
	mu       sync.Mutex
	projects map[string]models.Project
	jobs     map[string]models.Job
}

func newMemStore() *memStore {
	return &memStore{projects: map[string]models.Project{}, jobs: map[string]models.Job{}}
}

func (s *memStore) CreateProject(_ context.Context, p models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *memStore) GetProject(_ context.Context, userID, id string) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.UserID != userID {
		return models.Project{}, models.ErrNotFound
	}
	return p, nil
}

func (s *memStore) ListProjects(_ context.Context, userID string, limit int) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Project
	for _, p := range s.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetJob(_ context.Context, userID, id string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.UserID != userID {
		return models.Job{}, models.ErrNotFound
	}
	return j, nil
}

func (s *memStore) FindActiveJob(_ context.Context, projectID, kind string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ProjectID == projectID && j.Kind == kind && !j.IsTerminal() {
			return j, nil
		}
	}
	return models.Job{}, models.ErrNotFound
}

func (s *memStore) CreateJob(_ context.Context, userID, projectID string, build func(p *models.Project) (models.Job, error)) (models.Job, models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok || p.UserID != userID {
		return models.Job{}, models.Project{}, models.ErrNotFound
	}
	j, err := build(&p)
	if err != nil {
		return models.Job{}, models.Project{}, err
	}
	for _, other := range s.jobs {
		if other.ProjectID == projectID && other.Kind == j.Kind && !other.IsTerminal() {
			return models.Job{}, models.Project{}, models.ErrActiveJob
		}
	}
	s.projects[p.ID] = p
	s.jobs[j.ID] = j
	return j, p, nil
}

func (s *memStore) UpdateJob(_ context.Context, jobID string, fn func(j *models.Job, p *models.Project) error) (models.Job, models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return models.Job{}, models.Project{}, models.ErrNotFound
	}
	p := s.projects[j.ProjectID]
	if err := fn(&j, &p); err != nil {
		return models.Job{}, models.Project{}, err
	}
	s.jobs[j.ID] = j
	s.projects[p.ID] = p
	return j, p, nil
}

func (s *memStore) project(id string) models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id]
}

func (s *memStore) job(id string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

type memQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *memQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *memQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			break
		}
	}
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	projects []models.Project
}

func (r *recordingPublisher) Publish(_ context.Context, p models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects = append(r.projects, p)
	return nil
}

// flakyStore fails the UpdateJob calls whose 1-based index is listed in failOn.
type flakyStore struct {
	*memStore
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
	err    error
}

func (f *flakyStore) UpdateJob(ctx context.Context, jobID string, fn func(j *models.Job, p *models.Project) error) (models.Job, models.Project, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failOn[f.calls]
	f.mu.Unlock()
	if fail {
		return models.Job{}, models.Project{}, f.err
	}
	return f.memStore.UpdateJob(ctx, jobID, fn)
}
