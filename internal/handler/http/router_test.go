package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vasiliy-maslov/accounts-service/internal/db"
	userHandler "github.com/vasiliy-maslov/accounts-service/internal/handler/http"
	"github.com/vasiliy-maslov/accounts-service/internal/hash"
	"github.com/vasiliy-maslov/accounts-service/internal/user"
)

// memoryRepository mirrors the Postgres repository's observable behavior:
// unique phones, COALESCE-style patches and delete counts.
type memoryRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]user.User
	order []uuid.UUID
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{users: make(map[uuid.UUID]user.User)}
}

func (r *memoryRepository) phoneTaken(phone string, except uuid.UUID) bool {
	for id, u := range r.users {
		if id != except && u.Phone == phone {
			return true
		}
	}
	return false
}

func (r *memoryRepository) Create(_ context.Context, u *user.User) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phoneTaken(u.Phone, uuid.Nil) {
		return nil, user.ErrPhoneExists
	}
	r.users[u.ID] = *u
	r.order = append(r.order, u.ID)
	created := *u
	return &created, nil
}

func (r *memoryRepository) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *memoryRepository) GetByPhone(_ context.Context, phone string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == phone {
			found := u
			return &found, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *memoryRepository) List(_ context.Context) ([]user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]user.User, 0, len(r.users))
	for _, id := range r.order {
		if u, ok := r.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *memoryRepository) Update(_ context.Context, id uuid.UUID, patch user.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	if patch.Phone != nil && r.phoneTaken(*patch.Phone, id) {
		return user.ErrPhoneExists
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Phone != nil {
		u.Phone = *patch.Phone
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	r.users[id] = u
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return 0, nil
	}
	delete(r.users, id)
	return 1, nil
}

type fakeChecker struct {
	stats db.Stats
	err   error
}

func (f fakeChecker) Health(context.Context) (db.Stats, error) {
	return f.stats, f.err
}

type testServer struct {
	t      *testing.T
	repo   *memoryRepository
	router http.Handler
}

func newTestServer(t *testing.T, opts ...userHandler.Option) *testServer {
	t.Helper()
	repo := newMemoryRepository()
	svc := user.NewService(repo, hash.NewHasher(bcrypt.MinCost, 4))
	router := userHandler.NewRouter(userHandler.NewUserHandler(svc, opts...), fakeChecker{})
	return &testServer{t: t, repo: repo, router: router}
}

func (s *testServer) do(method, target string, payload any) *httptest.ResponseRecorder {
	s.t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(s.t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, target, &body)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) register(name, phone, password string) userHandler.UserResponse {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/register", map[string]string{"name": name, "phone": phone, "password": password})
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
	var resp userHandler.UserResponse
	require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestAccountsFlow(t *testing.T) {
	srv := newTestServer(t, userHandler.WithPasswordHash(true))

	ada := srv.register("Ada", "+100", "pw1")
	assert.NotEqual(t, uuid.Nil, ada.ID)
	assert.Equal(t, "Ada", ada.Name)
	assert.Equal(t, "+100", ada.Phone)
	assert.NotEqual(t, "pw1", ada.Password)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(ada.Password), []byte("pw1")))

	t.Run("login with correct password", func(t *testing.T) {
		rr := srv.do(http.MethodPost, "/login", map[string]string{"phone": "+100", "password": "pw1"})
		require.Equal(t, http.StatusOK, rr.Code)
		var resp userHandler.UserResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, ada.ID, resp.ID)
	})

	t.Run("login with wrong password", func(t *testing.T) {
		rr := srv.do(http.MethodPost, "/login", map[string]string{"phone": "+100", "password": "nope"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Invalid password\n", rr.Body.String())
	})

	t.Run("login with unknown phone", func(t *testing.T) {
		rr := srv.do(http.MethodPost, "/login", map[string]string{"phone": "+999", "password": "pw1"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "User not found\n", rr.Body.String())
	})

	t.Run("duplicate phone", func(t *testing.T) {
		rr := srv.do(http.MethodPost, "/register", map[string]string{"name": "Other", "phone": "+100", "password": "x"})
		assert.Equal(t, http.StatusConflict, rr.Code)
		users, err := srv.repo.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("password update changes login", func(t *testing.T) {
		rr := srv.do(http.MethodPut, "/users/"+ada.ID.String(), map[string]string{"password": "pw2"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "User updated successfully", rr.Body.String())

		rr = srv.do(http.MethodPost, "/login", map[string]string{"phone": "+100", "password": "pw1"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		rr = srv.do(http.MethodPost, "/login", map[string]string{"phone": "+100", "password": "pw2"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("name update is visible in list", func(t *testing.T) {
		rr := srv.do(http.MethodPut, "/users/"+ada.ID.String(), map[string]string{"name": "Ada L."})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = srv.do(http.MethodGet, "/users", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var users []userHandler.UserResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
		require.Len(t, users, 1)
		assert.Equal(t, "Ada L.", users[0].Name)
		assert.Equal(t, "+100", users[0].Phone)
	})

	t.Run("update of missing user", func(t *testing.T) {
		missing := uuid.Must(uuid.NewV4())
		rr := srv.do(http.MethodPut, "/users/"+missing.String(), map[string]string{"name": "Ghost"})
		assert.Equal(t, http.StatusNotFound, rr.Code)

		// bcrypt rejects passwords over 72 bytes; the missing row must still win.
		rr = srv.do(http.MethodPut, "/users/"+missing.String(), map[string]string{"password": strings.Repeat("x", 73)})
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "User not found\n", rr.Body.String())
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		rr := srv.do(http.MethodDelete, "/users/"+ada.ID.String(), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "User deleted", rr.Body.String())

		rr = srv.do(http.MethodDelete, "/users/"+ada.ID.String(), nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = srv.do(http.MethodPost, "/login", map[string]string{"phone": "+100", "password": "pw2"})
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = srv.do(http.MethodGet, "/users", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "[]", rr.Body.String())
	})
}

func TestAccountsFlow_PartialUpdates(t *testing.T) {
	srv := newTestServer(t)
	created := srv.register("Grace", "+200", "secret")

	before, err := srv.repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)

	rr := srv.do(http.MethodPut, "/users/"+created.ID.String(), map[string]string{})
	require.Equal(t, http.StatusOK, rr.Code)

	after, err := srv.repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(before, after), "empty update must leave the row unchanged")

	rr = srv.do(http.MethodPut, "/users/"+created.ID.String(), map[string]string{"name": "Grace H."})
	require.Equal(t, http.StatusOK, rr.Code)

	after, err = srv.repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace H.", after.Name)
	assert.Equal(t, before.Phone, after.Phone)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	srv.register("Linus", "+300", "secret")
	rr = srv.do(http.MethodPut, "/users/"+created.ID.String(), map[string]string{"phone": "+300"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAccountsFlow_ListAfterRegistrations(t *testing.T) {
	srv := newTestServer(t)

	const n = 5
	var expected []userHandler.UserResponse
	for i := 0; i < n; i++ {
		expected = append(expected, srv.register("user"+strconv.Itoa(i), "+4"+strconv.Itoa(i), "pw"))
	}

	rr := srv.do(http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var actual []userHandler.UserResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &actual))
	require.Len(t, actual, n)

	byPhone := func(s []userHandler.UserResponse) {
		sort.Slice(s, func(i, j int) bool { return s[i].Phone < s[j].Phone })
	}
	byPhone(expected)
	byPhone(actual)
	require.Empty(t, cmp.Diff(expected, actual))
	for _, u := range actual {
		assert.Empty(t, u.Password)
	}
}

func TestRouter_Health(t *testing.T) {
	t.Run("up", func(t *testing.T) {
		checker := fakeChecker{stats: db.Stats{TotalConns: 2, IdleConns: 1, MaxConns: 10}}
		router := userHandler.NewRouter(userHandler.NewUserHandler(new(MockUserService)), checker)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp userHandler.HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "up", resp.Status)
		assert.Equal(t, checker.stats, resp.Pool)
	})

	t.Run("down", func(t *testing.T) {
		checker := fakeChecker{err: errors.New("ping: connection refused")}
		router := userHandler.NewRouter(userHandler.NewUserHandler(new(MockUserService)), checker)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)

		var resp userHandler.HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "down", resp.Status)
		assert.Equal(t, "ping: connection refused", resp.Error)
	})

	t.Run("not mounted without checker", func(t *testing.T) {
		router := userHandler.NewRouter(userHandler.NewUserHandler(new(MockUserService)), nil)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
