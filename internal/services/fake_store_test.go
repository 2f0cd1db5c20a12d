package services

import (
	"context"
	"sort"
	"sync"

	"ideaflow/backend/internal/repository"
	"ideaflow/backend/pkg/models"
)

// fakeStore is an in-memory repository.Repository with failure injection.
type fakeStore struct {
	mu          sync.Mutex
	ideas       map[string]models.Idea
	evaluations map[string]models.Evaluation // key idea|evaluator
	incubations map[string]models.PreIncubatee
	colleges    map[string]models.College
	incubators  map[string]models.Incubator
	users       map[string]models.User

	updateCalls     int
	busyUpdates     int   // UpdateIdeaStatus returns ErrBusy this many times
	updateErr       error // returned by every UpdateIdeaStatus when set
	evaluationErr   error
	incubationErr   error
	listUsersErr    error
	createIncCalls  int
	createEvalCalls int
}

var _ repository.Repository = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		ideas:       map[string]models.Idea{},
		evaluations: map[string]models.Evaluation{},
		incubations: map[string]models.PreIncubatee{},
		colleges:    map[string]models.College{},
		incubators:  map[string]models.Incubator{},
		users:       map[string]models.User{},
	}
}

func evalKey(ideaID, evaluatorID string) string { return ideaID + "|" + evaluatorID }

func (f *fakeStore) GetIdea(_ context.Context, id string) (*models.Idea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idea, ok := f.ideas[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &idea, nil
}

func (f *fakeStore) CreateIdea(_ context.Context, idea *models.Idea) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ideas[idea.ID]; ok {
		return repository.ErrConflict
	}
	f.ideas[idea.ID] = *idea
	return nil
}

func (f *fakeStore) UpdateIdeaStatus(_ context.Context, u *models.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.busyUpdates > 0 {
		f.busyUpdates--
		return repository.ErrBusy
	}
	idea, ok := f.ideas[u.IdeaID]
	if !ok {
		return repository.ErrNotFound
	}
	if idea.Status != u.ExpectedStatus {
		return repository.ErrStaleStatus
	}
	// first write wins, as the SQL stores do
	keep := idea
	u.Apply(&idea)
	if keep.SubmittedAt != nil {
		idea.SubmittedAt = keep.SubmittedAt
	}
	if keep.ReviewStartedAt != nil {
		idea.ReviewStartedAt = keep.ReviewStartedAt
	}
	if keep.EndorsedAt != nil {
		idea.EndorsedAt = keep.EndorsedAt
	}
	if keep.IncubationStartedAt != nil {
		idea.IncubationStartedAt = keep.IncubationStartedAt
	}
	f.ideas[u.IdeaID] = idea
	return nil
}

func (f *fakeStore) GetEvaluation(_ context.Context, ideaID, evaluatorID string) (*models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.evaluations[evalKey(ideaID, evaluatorID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (f *fakeStore) CreateEvaluation(_ context.Context, e *models.Evaluation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createEvalCalls++
	if f.evaluationErr != nil {
		return f.evaluationErr
	}
	key := evalKey(e.IdeaID, e.EvaluatorID)
	if _, ok := f.evaluations[key]; ok {
		return repository.ErrConflict
	}
	f.evaluations[key] = *e
	return nil
}

func (f *fakeStore) UpdateEvaluation(_ context.Context, e *models.Evaluation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evaluationErr != nil {
		return f.evaluationErr
	}
	key := evalKey(e.IdeaID, e.EvaluatorID)
	existing, ok := f.evaluations[key]
	if !ok || existing.ID != e.ID {
		return repository.ErrNotFound
	}
	f.evaluations[key] = *e
	return nil
}

func (f *fakeStore) GetPreIncubateeByIdea(_ context.Context, ideaID string) (*models.PreIncubatee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.incubations[ideaID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) CreatePreIncubatee(_ context.Context, r *models.PreIncubatee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createIncCalls++
	if f.incubationErr != nil {
		return f.incubationErr
	}
	if _, ok := f.incubations[r.IdeaID]; ok {
		return repository.ErrConflict
	}
	f.incubations[r.IdeaID] = *r
	return nil
}

func (f *fakeStore) GetCollege(_ context.Context, id string) (*models.College, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.colleges[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (f *fakeStore) GetIncubator(_ context.Context, id string) (*models.Incubator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incubators[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inc, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) ListUsers(_ context.Context, filter repository.UserFilter) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listUsersErr != nil {
		return nil, f.listUsersErr
	}
	var out []models.User
	for _, u := range f.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.CollegeID != "" && (u.CollegeID == nil || *u.CollegeID != filter.CollegeID) {
			continue
		}
		if filter.IncubatorID != "" && (u.IncubatorID == nil || *u.IncubatorID != filter.IncubatorID) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) PutIncubator(_ context.Context, inc *models.Incubator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incubators[inc.ID] = *inc
	return nil
}

func (f *fakeStore) PutCollege(_ context.Context, c *models.College) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.colleges[c.ID] = *c
	return nil
}

func (f *fakeStore) PutUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = *u
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

func (f *fakeStore) idea(id string) models.Idea {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ideas[id]
}

func (f *fakeStore) incubationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.incubations)
}

func (f *fakeStore) evaluationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.evaluations)
}
