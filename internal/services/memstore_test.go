package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/internal/config"
	"github.com/AnshRaj112/accountd/internal/models"
	"github.com/AnshRaj112/accountd/internal/repository"
	"github.com/AnshRaj112/accountd/pkg/utils"
)

// memStore backs the user, profile and post repositories in memory. Its
// transaction manager snapshots both collections and restores them when the
// callback fails, the way a Mongo transaction aborts.
type memStore struct {
	mu       sync.Mutex
	hasher   repository.Hasher
	users    map[primitive.ObjectID]models.User
	profiles map[primitive.ObjectID]models.Profile // keyed by user id
	posts    []models.Post

	failProfileCreate error
	// failUserWrite is returned by user inserts and email updates after the
	// lookup has passed, as a unique index would for a concurrent writer.
	failUserWrite error
}

func newMemStore(hasher repository.Hasher) *memStore {
	return &memStore{
		hasher:   hasher,
		users:    map[primitive.ObjectID]models.User{},
		profiles: map[primitive.ObjectID]models.Profile{},
	}
}

type memUsers struct{ s *memStore }
type memProfiles struct{ s *memStore }
type memPosts struct{ s *memStore }
type memTx struct{ s *memStore }

func (r memUsers) Create(_ context.Context, email, password string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failUserWrite != nil {
		return models.User{}, r.s.failUserWrite
	}
	for _, u := range r.s.users {
		if u.Email == email {
			return models.User{}, repository.ErrDuplicate
		}
	}
	hash, err := r.s.hasher.Hash(password)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{ID: primitive.NewObjectID(), Email: email, Password: hash, CreatedAt: time.Now()}
	r.s.users[u.ID] = u
	return u, nil
}

func (r memUsers) FindByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrNotFound
}

func (r memUsers) UpdateEmail(_ context.Context, id primitive.ObjectID, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failUserWrite != nil {
		return r.s.failUserWrite
	}
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, other := range r.s.users {
		if other.Email == email && other.ID != id {
			return repository.ErrDuplicate
		}
	}
	u.Email = email
	r.s.users[id] = u
	return nil
}

func (r memUsers) SetPassword(_ context.Context, id primitive.ObjectID, password string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	hash, err := r.s.hasher.Hash(password)
	if err != nil {
		return err
	}
	u.Password = hash
	r.s.users[id] = u
	return nil
}

func (r memUsers) SetResetToken(_ context.Context, id primitive.ObjectID, token string, expires time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.ResetPasswordToken = &token
	u.ResetPasswordExpires = &expires
	r.s.users[id] = u
	return nil
}

func (r memUsers) ConsumeResetToken(_ context.Context, token, password string, now time.Time) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, u := range r.s.users {
		if u.ResetPasswordToken == nil || *u.ResetPasswordToken != token {
			continue
		}
		if !u.ResetPasswordExpires.After(now) {
			return models.User{}, repository.ErrNotFound
		}
		hash, err := r.s.hasher.Hash(password)
		if err != nil {
			return models.User{}, err
		}
		u.Password = hash
		u.ResetPasswordToken = nil
		u.ResetPasswordExpires = nil
		r.s.users[id] = u
		return u, nil
	}
	return models.User{}, repository.ErrNotFound
}

func (r memProfiles) Create(_ context.Context, p models.Profile) (models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failProfileCreate != nil {
		return models.Profile{}, r.s.failProfileCreate
	}
	if _, ok := r.s.profiles[p.UserID]; ok {
		return models.Profile{}, repository.ErrDuplicate
	}
	p.ID = primitive.NewObjectID()
	r.s.profiles[p.UserID] = p
	return p, nil
}

func (r memProfiles) FindByUserID(_ context.Context, userID primitive.ObjectID) (models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[userID]
	if !ok {
		return models.Profile{}, repository.ErrNotFound
	}
	return p, nil
}

func (r memProfiles) Update(_ context.Context, userID primitive.ObjectID, patch models.ProfilePatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.FirstName != nil {
		p.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		p.LastName = *patch.LastName
	}
	if patch.ProfileImage != nil {
		p.ProfileImage = *patch.ProfileImage
	}
	r.s.profiles[userID] = p
	return nil
}

func (r memProfiles) ListAccounts(_ context.Context) ([]models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Account{}
	for uid, p := range r.s.profiles {
		if u, ok := r.s.users[uid]; ok {
			out = append(out, models.Account{User: u, Profile: p})
		}
	}
	return out, nil
}

func (r memPosts) ListByAuthor(_ context.Context, author primitive.ObjectID) ([]models.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Post{}
	for _, p := range r.s.posts {
		if p.Author == author {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.s.mu.Lock()
	users := make(map[primitive.ObjectID]models.User, len(t.s.users))
	for k, v := range t.s.users {
		users[k] = v
	}
	profiles := make(map[primitive.ObjectID]models.Profile, len(t.s.profiles))
	for k, v := range t.s.profiles {
		profiles[k] = v
	}
	t.s.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.s.mu.Lock()
		t.s.users, t.s.profiles = users, profiles
		t.s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) profileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

type fakeUploader struct {
	url    string
	err    error
	folder string
	got    *Upload
}

func (f *fakeUploader) Upload(_ context.Context, file Upload, folder string) (string, error) {
	f.got = &file
	f.folder = folder
	return f.url, f.err
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

// countingVerifier records how often passwords are compared.
type countingVerifier struct {
	PasswordVerifier
	mu       sync.Mutex
	verified int
}

func (c *countingVerifier) Verify(password, hash string) (bool, error) {
	c.mu.Lock()
	c.verified++
	c.mu.Unlock()
	return c.PasswordVerifier.Verify(password, hash)
}

func (c *countingVerifier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verified
}

type fixture struct {
	store    *memStore
	svc      *AccountService
	tokens   *TokenService
	uploader  *fakeUploader
	mailer    *fakeMailer
	passwords *countingVerifier
}

func newFixture(t *testing.T, opts AccountOptions) *fixture {
	t.Helper()

	hasher := utils.NewPasswordHasher(utils.HashParams{Memory: 1024, Time: 1, Threads: 1})
	store := newMemStore(hasher)
	tokens, err := NewTokenService(config.TokenConfig{Secret: "test-secret", Expiry: config.DefaultTokenExpiry})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	uploader := &fakeUploader{url: "https://cdn.example/img.png"}
	mailer := &fakeMailer{}

	passwords := &countingVerifier{PasswordVerifier: hasher}
	users := memUsers{store}
	svc := NewAccountService(AccountDeps{
		Users:     users,
		Profiles:  memProfiles{store},
		Posts:     memPosts{store},
		Tx:        memTx{store},
		Tokens:    tokens,
		Resets:    NewResetLedger(users, time.Hour),
		Passwords: passwords,
		Uploader:  uploader,
		Mailer:    mailer,
		Logger:    zap.NewNop(),
	}, opts)
	svc.dispatch = func(fn func()) { fn() }

	return &fixture{store: store, svc: svc, tokens: tokens, uploader: uploader, mailer: mailer, passwords: passwords}
}

var errBoom = errors.New("boom")
