package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/cachestore"
	"github.com/MarcoPoloResearchLab/inkwell/internal/database"
	"github.com/MarcoPoloResearchLab/inkwell/internal/model"
)

var databaseSequence atomic.Int64

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	auth.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type responseEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	handler http.Handler
	models  *model.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:server_%d?mode=memory&cache=shared", databaseSequence.Add(1))
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	store, err := cachestore.NewMemoryStore(cachestore.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}
	synchronizer, err := model.NewSynchronizer(model.SynchronizerConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to create synchronizer: %v", err)
	}
	models, err := model.NewManager(model.ManagerConfig{Database: db, Synchronizer: synchronizer})
	if err != nil {
		t.Fatalf("failed to create model manager: %v", err)
	}
	tokens, err := auth.NewTokenManager(auth.TokenManagerConfig{SigningSecret: []byte("router-test-secret")})
	if err != nil {
		t.Fatalf("failed to create token manager: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{TokenManager: tokens, Models: models})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{handler: handler, models: models}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, responseEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)

	var envelope responseEnvelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return recorder, envelope
}

func (s *testServer) expect(t *testing.T, method, path, token string, body any, status int, target any) responseEnvelope {
	t.Helper()
	recorder, envelope := s.do(t, method, path, token, body)
	if recorder.Code != status {
		t.Fatalf("%s %s: expected status %d, got %d (%s)", method, path, status, recorder.Code, recorder.Body.String())
	}
	if envelope.Success != (status < http.StatusBadRequest) {
		t.Fatalf("%s %s: unexpected success flag in %s", method, path, recorder.Body.String())
	}
	if target != nil {
		if err := json.Unmarshal(envelope.Data, target); err != nil {
			t.Fatalf("%s %s: failed to decode data: %v", method, path, err)
		}
	}
	return envelope
}

func (s *testServer) signup(t *testing.T, name, email string) authResponsePayload {
	t.Helper()
	var session authResponsePayload
	s.expect(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "correct-horse",
	}, http.StatusCreated, &session)
	if session.AccessToken == "" || session.TokenType != "Bearer" {
		t.Fatalf("expected bearer token, got %+v", session)
	}
	return session
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err != errMissingTokenManager {
		t.Fatalf("expected missing token manager error, got %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{TokenManager: stubTokenManager{}}); err != errMissingModels {
		t.Fatalf("expected missing models error, got %v", err)
	}
}

func TestAuthEndpoints(t *testing.T) {
	server := newTestServer(t)
	alice := server.signup(t, "Alice", "Alice@Example.com")
	if alice.Author.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", alice.Author.Email)
	}

	server.expect(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": "Alice Again", "email": "alice@example.com", "password": "correct-horse",
	}, http.StatusConflict, nil)
	server.expect(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": "Short", "email": "short@example.com", "password": "123",
	}, http.StatusUnprocessableEntity, nil)

	server.expect(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-horse",
	}, http.StatusUnauthorized, nil)
	server.expect(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "correct-horse",
	}, http.StatusUnauthorized, nil)

	var session authResponsePayload
	server.expect(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ALICE@example.com", "password": "correct-horse",
	}, http.StatusOK, &session)
	if session.Author.ID != alice.Author.ID {
		t.Fatalf("expected login as %d, got %d", alice.Author.ID, session.Author.ID)
	}

	var author model.AuthorForResult
	server.expect(t, http.MethodGet, "/authors/"+strconv.FormatInt(alice.Author.ID, 10), "", nil, http.StatusOK, &author)
	if author.Name != "Alice" {
		t.Fatalf("unexpected author: %+v", author)
	}
}

func TestPostEndpoints(t *testing.T) {
	server := newTestServer(t)
	alice := server.signup(t, "Alice", "alice@example.com")
	bob := server.signup(t, "Bob", "bob@example.com")

	server.expect(t, http.MethodPost, "/posts", "", map[string]any{"title": "t", "content": "c"}, http.StatusUnauthorized, nil)

	var post model.Post
	server.expect(t, http.MethodPost, "/posts", alice.AccessToken, map[string]any{
		"title": "First", "content": "hello", "weight": 5, "author_id": bob.Author.ID,
	}, http.StatusCreated, &post)
	if post.AuthorID == nil || *post.AuthorID != alice.Author.ID {
		t.Fatalf("expected post owned by caller, got %+v", post.AuthorID)
	}
	server.expect(t, http.MethodPost, "/posts", alice.AccessToken, map[string]any{
		"title": "Second", "content": "world", "weight": 20, "published": true,
	}, http.StatusCreated, nil)

	recorder, envelope := server.do(t, http.MethodGet, "/posts", "", nil)
	if recorder.Code != http.StatusOK || recorder.Header().Get(cacheHeader) != "hit" {
		t.Fatalf("expected cached listing, got %d %q", recorder.Code, recorder.Header().Get(cacheHeader))
	}
	var cached []model.Post
	if err := json.Unmarshal(envelope.Data, &cached); err != nil || len(cached) != 2 {
		t.Fatalf("expected two cached posts, got %d (%v)", len(cached), err)
	}

	var heavy []model.Post
	recorder, envelope = server.do(t, http.MethodGet, "/posts?weight.gte=10&published=true", "", nil)
	if recorder.Code != http.StatusOK || recorder.Header().Get(totalCountHeader) != "1" {
		t.Fatalf("unexpected filtered listing: %d total=%q", recorder.Code, recorder.Header().Get(totalCountHeader))
	}
	if err := json.Unmarshal(envelope.Data, &heavy); err != nil || len(heavy) != 1 || heavy[0].Title != "Second" {
		t.Fatalf("unexpected filtered posts: %+v (%v)", heavy, err)
	}

	server.expect(t, http.MethodGet, "/posts?content=hello", "", nil, http.StatusBadRequest, nil)
	server.expect(t, http.MethodGet, "/posts?weight=heavy", "", nil, http.StatusBadRequest, nil)
	server.expect(t, http.MethodGet, "/posts?offset=-1", "", nil, http.StatusBadRequest, nil)
	server.expect(t, http.MethodGet, "/posts/abc", "", nil, http.StatusBadRequest, nil)
	server.expect(t, http.MethodGet, "/posts/9999", "", nil, http.StatusNotFound, nil)

	path := "/posts/" + strconv.FormatInt(post.ID, 10)
	server.expect(t, http.MethodPatch, path, bob.AccessToken, map[string]any{"title": "Hijacked"}, http.StatusForbidden, nil)

	var updated model.Post
	server.expect(t, http.MethodPatch, path, alice.AccessToken, map[string]any{"title": "Renamed"}, http.StatusOK, &updated)
	if updated.Title != "Renamed" || updated.Content != "hello" {
		t.Fatalf("unexpected updated post: %+v", updated)
	}

	server.expect(t, http.MethodDelete, path, bob.AccessToken, nil, http.StatusForbidden, nil)
	server.expect(t, http.MethodDelete, path, alice.AccessToken, nil, http.StatusOK, nil)
	server.expect(t, http.MethodGet, path, "", nil, http.StatusNotFound, nil)
}

func TestEditReviewFlow(t *testing.T) {
	server := newTestServer(t)
	alice := server.signup(t, "Alice", "alice@example.com")
	bob := server.signup(t, "Bob", "bob@example.com")

	var post model.Post
	server.expect(t, http.MethodPost, "/posts", alice.AccessToken, map[string]any{
		"title": "Draft", "content": "teh content",
	}, http.StatusCreated, &post)
	postPath := "/posts/" + strconv.FormatInt(post.ID, 10)

	server.expect(t, http.MethodPost, "/edits", bob.AccessToken, map[string]any{
		"post_id": 9999, "new_content": "nothing",
	}, http.StatusConflict, nil)

	var edit model.Edit
	server.expect(t, http.MethodPost, "/edits", bob.AccessToken, map[string]any{
		"post_id": post.ID, "new_content": "the content", "editor_id": alice.Author.ID,
	}, http.StatusCreated, &edit)
	if edit.EditorID != bob.Author.ID || edit.Status != model.EditPending {
		t.Fatalf("unexpected edit: %+v", edit)
	}
	editPath := "/edits/" + strconv.FormatInt(edit.ID, 10)

	server.expect(t, http.MethodGet, "/edits", "", nil, http.StatusUnauthorized, nil)
	var pending []model.Edit
	server.expect(t, http.MethodGet, "/edits?status=PENDING&post_id="+strconv.FormatInt(post.ID, 10), alice.AccessToken, nil, http.StatusOK, &pending)
	if len(pending) != 1 || pending[0].ID != edit.ID {
		t.Fatalf("unexpected pending edits: %+v", pending)
	}

	server.expect(t, http.MethodPatch, editPath, alice.AccessToken, map[string]any{"new_content": "mine"}, http.StatusForbidden, nil)
	server.expect(t, http.MethodPatch, editPath, bob.AccessToken, map[string]any{"status": "ACCEPTED"}, http.StatusForbidden, nil)
	server.expect(t, http.MethodPatch, editPath, bob.AccessToken, map[string]any{"new_content": "the fixed content"}, http.StatusOK, nil)

	server.expect(t, http.MethodPost, editPath+"/accept", bob.AccessToken, nil, http.StatusForbidden, nil)

	var reviewed model.EditForResult
	server.expect(t, http.MethodPost, editPath+"/accept", alice.AccessToken, nil, http.StatusOK, &reviewed)
	if reviewed.Status != model.EditAccepted {
		t.Fatalf("expected accepted edit, got %+v", reviewed)
	}

	var current model.Post
	server.expect(t, http.MethodGet, postPath, "", nil, http.StatusOK, &current)
	if current.Content != "the fixed content" {
		t.Fatalf("expected accepted content on post, got %q", current.Content)
	}

	server.expect(t, http.MethodPost, editPath+"/reject", alice.AccessToken, nil, http.StatusConflict, nil)
	server.expect(t, http.MethodDelete, postPath, alice.AccessToken, nil, http.StatusConflict, nil)

	server.expect(t, http.MethodDelete, editPath, bob.AccessToken, nil, http.StatusOK, nil)
	server.expect(t, http.MethodDelete, postPath, alice.AccessToken, nil, http.StatusOK, nil)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)
	server.expect(t, http.MethodGet, "/healthz", "", nil, http.StatusOK, nil)
}
