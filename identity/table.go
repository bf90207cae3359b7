package identity

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"wisher-api/domain"
	"wisher-api/storage"
)

const (
	minPasswordLength = 6
	maxFailedAttempts = 5
	attemptWindow     = 15 * time.Minute
)

type accountStore interface {
	GetUserProfile(ctx context.Context, id string) (storage.UserProfile, bool, error)
	GetUserByEmail(ctx context.Context, email string) (storage.UserProfile, bool, error)
	PutUserProfile(ctx context.Context, p storage.UserProfile) error
}

// TableProvider verifies credentials against the users table with bcrypt
// hashes. The signed-in user is cached on the provider itself; it is an
// explicit session object handed to whoever needs it, not process state.
type TableProvider struct {
	store  accountStore
	logger *log.Logger
	clock  func() time.Time

	mu      sync.Mutex
	current domain.User
	signed  bool
	failed  map[string]*attemptRecord
}

type attemptRecord struct {
	count int
	since time.Time
}

// NewTableProvider creates a provider backed by the given account store.
func NewTableProvider(store accountStore, logger *log.Logger) *TableProvider {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TableProvider{
		store:  store,
		logger: logger,
		clock:  time.Now,
		failed: make(map[string]*attemptRecord),
	}
}

func (p *TableProvider) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.User{}, codeError(CodeInvalidEmail, "Invalid email format")
	}
	if p.throttled(email) {
		return domain.User{}, codeError(CodeTooManyRequests, "Too many attempts. Please try again later")
	}

	profile, found, err := p.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		p.recordFailure(email)
		return domain.User{}, codeError(CodeUserNotFound, "No account found with this email")
	}
	if profile.Disabled {
		return domain.User{}, codeError(CodeUserDisabled, "This account has been disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		p.recordFailure(email)
		return domain.User{}, codeError(CodeWrongPassword, "Incorrect password")
	}

	user := profile.User()
	p.mu.Lock()
	p.current = user
	p.signed = true
	delete(p.failed, email)
	p.mu.Unlock()

	p.logger.WithField("user", user.ID).Debug("sign in succeeded")
	return user, nil
}

func (p *TableProvider) SignUp(ctx context.Context, email, password, name string) (domain.User, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.User{}, codeError(CodeInvalidEmail, "Invalid email format")
	}
	if len(password) < minPasswordLength {
		return domain.User{}, codeError(CodeWeakPassword, "Password should be at least 6 characters")
	}
	if _, found, err := p.store.GetUserByEmail(ctx, email); err != nil {
		return domain.User{}, err
	} else if found {
		return domain.User{}, codeError(CodeEmailInUse, "This email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	profile := storage.UserProfile{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    p.clock().UTC(),
	}
	if err := p.store.PutUserProfile(ctx, profile); err != nil {
		return domain.User{}, err
	}

	user := profile.User()
	p.mu.Lock()
	p.current = user
	p.signed = true
	p.mu.Unlock()

	p.logger.WithField("user", user.ID).Debug("sign up succeeded")
	return user, nil
}

func (p *TableProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = domain.User{}
	p.signed = false
	p.mu.Unlock()
	return nil
}

func (p *TableProvider) CurrentUser() (domain.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.signed
}

func (p *TableProvider) throttled(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.failed[email]
	if !ok {
		return false
	}
	if p.clock().Sub(rec.since) > attemptWindow {
		delete(p.failed, email)
		return false
	}
	return rec.count >= maxFailedAttempts
}

func (p *TableProvider) recordFailure(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	rec, ok := p.failed[email]
	if !ok || now.Sub(rec.since) > attemptWindow {
		p.failed[email] = &attemptRecord{count: 1, since: now}
		return
	}
	rec.count++
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
