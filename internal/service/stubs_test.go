package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"feedhub/internal/models"
	"feedhub/internal/notifications"
)

// memUserRepo is an in-memory repository.UserRepository.
type memUserRepo struct {
	mu       sync.Mutex
	byID     map[uint]*models.User
	nextID   uint
	appendFn func(ctx context.Context, userID, postID uint) error
	removeFn func(ctx context.Context, userID, postID uint) error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[uint]*models.User{}, nextID: 1}
}

func (r *memUserRepo) GetByID(_ context.Context, id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, models.NewNotFoundError("User not found.")
	}
	cp := *u
	cp.PostIDs = append([]uint{}, u.PostIDs...)
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == user.Email {
			return models.NewConflictError(msgEmailExists)
		}
	}
	user.ID = r.nextID
	r.nextID++
	cp := *user
	r.byID[user.ID] = &cp
	return nil
}

func (r *memUserRepo) UpdateStatus(_ context.Context, id uint, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return models.NewNotFoundError("User not found.")
	}
	u.Status = status
	return nil
}

func (r *memUserRepo) AppendPost(ctx context.Context, userID, postID uint) error {
	if r.appendFn != nil {
		if err := r.appendFn(ctx, userID, postID); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return models.NewNotFoundError("User not found.")
	}
	u.AddPost(postID)
	return nil
}

func (r *memUserRepo) RemovePost(ctx context.Context, userID, postID uint) error {
	if r.removeFn != nil {
		if err := r.removeFn(ctx, userID, postID); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return models.NewNotFoundError("User not found.")
	}
	u.RemovePost(postID)
	return nil
}

func (r *memUserRepo) seed(name, email string) *models.User {
	u := &models.User{Name: name, Email: email, Status: models.DefaultStatus, PostIDs: []uint{}}
	_ = r.Create(context.Background(), u)
	return u
}

// memPostRepo is an in-memory repository.PostRepository.
type memPostRepo struct {
	mu       sync.Mutex
	byID     map[uint]*models.Post
	nextID   uint
	clock    time.Time
	createFn func(ctx context.Context, post *models.Post) error
	updateFn func(ctx context.Context, post *models.Post) error
}

func newMemPostRepo() *memPostRepo {
	return &memPostRepo{byID: map[uint]*models.Post{}, nextID: 1, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *memPostRepo) Create(ctx context.Context, post *models.Post) error {
	if r.createFn != nil {
		if err := r.createFn(ctx, post); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.ImageURL == post.ImageURL {
			return models.NewConflictError("Image is already used by another post.")
		}
	}
	r.clock = r.clock.Add(time.Second)
	post.ID = r.nextID
	post.CreatedAt = r.clock
	post.UpdatedAt = r.clock
	r.nextID++
	cp := *post
	r.byID[post.ID] = &cp
	return nil
}

func (r *memPostRepo) GetByID(_ context.Context, id uint) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, models.NewNotFoundError("Could not find post.")
	}
	cp := *p
	return &cp, nil
}

func (r *memPostRepo) GetOwned(ctx context.Context, id, creatorID uint) (*models.Post, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil || !p.OwnedBy(creatorID) {
		return nil, models.NewNotFoundError("Could not find post.")
	}
	return p, nil
}

func (r *memPostRepo) Update(ctx context.Context, post *models.Post, prevImage string) error {
	if r.updateFn != nil {
		if err := r.updateFn(ctx, post); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[post.ID]
	if !ok || !p.OwnedBy(post.Creator.UserID) {
		return models.NewNotFoundError("Could not find post.")
	}
	if p.ImageURL != prevImage {
		return models.NewConflictError("Post was changed by another request.")
	}
	p.Title, p.Content, p.ImageURL = post.Title, post.Content, post.ImageURL
	return nil
}

func (r *memPostRepo) DeleteOwned(_ context.Context, id, creatorID uint) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || !p.OwnedBy(creatorID) {
		return nil, nil
	}
	delete(r.byID, id)
	return p, nil
}

func (r *memPostRepo) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *memPostRepo) sorted() []models.Post {
	out := make([]models.Post, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memPostRepo) List(_ context.Context, offset, limit int) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted()
	if offset >= len(all) {
		return []models.Post{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r *memPostRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.byID)), nil
}

func (r *memPostRepo) ListByIDs(_ context.Context, ids []uint) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Post{}
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// eventRecorder captures broadcast events.
type eventRecorder struct {
	mu     sync.Mutex
	events []notifications.MutationEvent
}

func (e *eventRecorder) Broadcast(_ context.Context, ev notifications.MutationEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventRecorder) actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Action)
	}
	return out
}
