package auth

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// mockStore is an in-memory CredentialStore for engine tests.
type mockStore struct {
	mu      sync.Mutex
	nextID  int
	byID    map[string]User
	byEmail map[string]string

	failAll bool
}

func newMockStore() *mockStore {
	return &mockStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (m *mockStore) Create(_ context.Context, input CreateUserInput) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll {
		return User{}, ErrServiceUnavailable
	}

	key := strings.ToLower(input.Email)
	if _, ok := m.byEmail[key]; ok {
		return User{}, ErrDuplicateEmail
	}

	m.nextID++
	user := User{
		ID:           "u" + strconv.Itoa(m.nextID),
		Email:        input.Email,
		DisplayName:  input.DisplayName,
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.byID[user.ID] = user
	m.byEmail[key] = user.ID

	return user, nil
}

func (m *mockStore) FindByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll {
		return User{}, ErrServiceUnavailable
	}

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *mockStore) FindByID(_ context.Context, userID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll {
		return User{}, ErrServiceUnavailable
	}

	user, ok := m.byID[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *mockStore) ReplacePasswordHash(_ context.Context, userID, newHash string) error {
	return m.mutate(userID, func(u *User) { u.PasswordHash = newHash })
}

func (m *mockStore) SetEmailVerified(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *User) { u.EmailVerified = true })
}

func (m *mockStore) EnableTwoFactor(_ context.Context, userID, secret string) error {
	return m.mutate(userID, func(u *User) {
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = secret
	})
}

func (m *mockStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll {
		return ErrServiceUnavailable
	}

	user, ok := m.byID[userID]
	if !ok {
		return ErrNotFound
	}
	delete(m.byID, userID)
	delete(m.byEmail, strings.ToLower(user.Email))

	return nil
}

func (m *mockStore) mutate(userID string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll {
		return ErrServiceUnavailable
	}

	user, ok := m.byID[userID]
	if !ok {
		return ErrNotFound
	}
	fn(&user)
	m.byID[userID] = user

	return nil
}

// captureSender records delivered codes so tests can replay them.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string // purpose.String()+":"+email -> code
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (c *captureSender) SendCode(_ context.Context, email string, purpose CodePurpose, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[purpose.String()+":"+strings.ToLower(email)] = code
	return nil
}

// lastCode polls for the most recent code delivered to email for the
// given purpose. Delivery is async, so tests wait briefly.
func (c *captureSender) lastCode(t *testing.T, purpose CodePurpose, email string) string {
	t.Helper()

	key := purpose.String() + ":" + strings.ToLower(email)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		code, ok := c.codes[key]
		c.mu.Unlock()
		if ok {
			return code
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no code delivered for %s", key)
	return ""
}

func (c *captureSender) clear(purpose CodePurpose, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.codes, purpose.String()+":"+strings.ToLower(email))
}

// fastTestConfig keeps Argon2 cheap so engine tests stay quick.
func fastTestConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Mail.DropIfFull = false
	return cfg
}

type testEngine struct {
	engine *Engine
	store  *mockStore
	sender *captureSender
}

func newTestEngine(t *testing.T, rdb *redis.Client, mutate func(*Config)) *testEngine {
	t.Helper()

	cfg := fastTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newMockStore()
	sender := newCaptureSender()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		WithSender(sender).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{engine: engine, store: store, sender: sender}
}

// signUpUser registers a user and returns the created result.
func (te *testEngine) signUpUser(t *testing.T, email, password string) *SignUpResult {
	t.Helper()

	result, err := te.engine.SignUp(context.Background(), email, "Test User", password)
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return result
}
