package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/docvault/docvault/backend/go-services/internal/document/repository"
	"github.com/docvault/docvault/backend/go-services/internal/document/service"
	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/internal/notify"
	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/docvault/docvault/backend/go-services/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	g        *gin.Engine
	repo     *repository.MemoryRepo
	blobs    *storage.MemoryStorage
	managers *int32
}

// fakeAuth stands in for the token middleware: the subject comes from X-User.
func fakeAuth(c *gin.Context) {
	sub := c.GetHeader("X-User")
	if sub == "" {
		sub = c.Query("user")
	}
	if sub != "" {
		c.Set("claims", map[string]interface{}{"sub": sub})
	}
	c.Next()
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	blobs := storage.NewMemoryStorage()
	userSvc := users.NewService(users.NewMemoryUserRepository())
	ctx := context.Background()
	for _, u := range []*models.User{
		{Sub: "alice", Email: "alice@example.com", Name: "Alice"},
		{Sub: "bob", Email: "bob@example.com", Name: "Bob"},
	} {
		_, err := userSvc.UpsertFromClaims(ctx, map[string]interface{}{"sub": u.Sub, "email": u.Email, "name": u.Name})
		require.NoError(t, err)
	}

	var managers int32
	hub := notify.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	reg := service.NewRegistry(func() *service.Manager {
		atomic.AddInt32(&managers, 1)
		return service.NewManager(service.Deps{Store: repo, Blobs: blobs, Users: userSvc, Toaster: hub}, service.Options{})
	}, 0)
	t.Cleanup(reg.Close)

	g := gin.New()
	RegisterShareRoutes(g, repo)
	api := g.Group("/")
	api.Use(fakeAuth)
	RegisterDocumentRoutes(api, Deps{Registry: reg, Users: userSvc, Store: repo, Blobs: blobs, Hub: hub})
	return &testEnv{g: g, repo: repo, blobs: blobs, managers: &managers}
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	e.g.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreate_ValidationNeverReachesManager(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/documents", "alice", `{"title":"Lease"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPost, "/api/documents", "alice", `{"title":"Lease","category":"Hobbies"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPost, "/api/documents", "alice", `{"title":"  ","category":"Legal"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, int32(0), atomic.LoadInt32(e.managers))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := e.repo.Subscribe(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, (<-ch).Documents)
}

func TestUnauthenticated(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/api/documents", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/documents", "alice", `{"title":"Lease","category":"Legal","tags":["home"],"fileType":"application/pdf"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[document.Document](t, w)
	require.NotEmpty(t, created.ID)
	require.Equal(t, document.StatusActive, created.Status)
	require.Equal(t, document.RoleOwner, created.Members["alice"].Role)
	id := created.ID

	w = e.do(t, http.MethodGet, "/api/documents", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]document.Document](t, w), 1)

	// bob cannot see it
	w = e.do(t, http.MethodGet, "/api/documents/"+id, "bob", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPatch, "/api/documents/"+id, "alice", `{"title":"Lease 2024","reminderDate":"2030-01-01T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, _ := e.repo.Get(context.Background(), id)
	require.Equal(t, "Lease 2024", got.Title)
	require.NotNil(t, got.ReminderDate)

	w = e.do(t, http.MethodPatch, "/api/documents/"+id, "alice", `{"reminderDate":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	got, _ = e.repo.Get(context.Background(), id)
	require.Nil(t, got.ReminderDate)
	require.Equal(t, "Lease 2024", got.Title)

	w = e.do(t, http.MethodPost, "/api/documents/"+id+"/favorite", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode[map[string]interface{}](t, w)["isFavorite"])

	w = e.do(t, http.MethodGet, "/api/documents?view=favorites", "alice", "")
	require.Len(t, decode[[]document.Document](t, w), 1)

	w = e.do(t, http.MethodPost, "/api/documents/"+id+"/trash", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, "/api/documents", "alice", "")
	require.Empty(t, decode[[]document.Document](t, w))
	w = e.do(t, http.MethodGet, "/api/documents?view=trashed", "alice", "")
	require.Len(t, decode[[]document.Document](t, w), 1)

	w = e.do(t, http.MethodPost, "/api/documents/"+id+"/restore", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	got, _ = e.repo.Get(context.Background(), id)
	require.Equal(t, document.StatusActive, got.Status)
	require.Nil(t, got.TrashedAt)

	w = e.do(t, http.MethodDelete, "/api/documents/"+id, "alice", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	_, err := e.repo.Get(context.Background(), id)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListFiltersAndSearch(t *testing.T) {
	e := newEnv(t)
	var ids []string
	for _, body := range []string{
		`{"title":"Payslip March","category":"Finance","tags":["salary"]}`,
		`{"title":"Contract","category":"Work","description":"employment"}`,
		`{"title":"Holiday photos","category":"Personal"}`,
	} {
		w := e.do(t, http.MethodPost, "/api/documents", "alice", body)
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode[document.Document](t, w).ID)
	}

	w := e.do(t, http.MethodGet, "/api/documents?category=Finance", "alice", "")
	docs := decode[[]document.Document](t, w)
	require.Len(t, docs, 1)
	require.Equal(t, "Payslip March", docs[0].Title)

	w = e.do(t, http.MethodGet, "/api/documents?q=EMPLOY", "alice", "")
	docs = decode[[]document.Document](t, w)
	require.Len(t, docs, 1)
	require.Equal(t, "Contract", docs[0].Title)

	// search applies within the selected view
	w = e.do(t, http.MethodPost, "/api/documents/"+ids[2]+"/trash", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, "/api/documents?view=trashed&q=holiday", "alice", "")
	docs = decode[[]document.Document](t, w)
	require.Len(t, docs, 1)
	require.Equal(t, "Holiday photos", docs[0].Title)
	w = e.do(t, http.MethodGet, "/api/documents?q=holiday", "alice", "")
	require.Empty(t, decode[[]document.Document](t, w))
	w = e.do(t, http.MethodPost, "/api/documents/"+ids[2]+"/restore", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/documents?view=nope", "alice", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/documents/summary", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[document.Summary](t, w)
	require.Equal(t, 3, summary.Total)

	w = e.do(t, http.MethodGet, "/api/documents/timeline", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]document.TimelineDay](t, w), 1)
}

func TestMembers(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/documents", "alice", `{"title":"Budget","category":"Finance"}`)
	id := decode[document.Document](t, w).ID

	w = e.do(t, http.MethodPut, "/api/documents/"+id+"/members", "alice",
		`{"members":{"alice":{"role":"owner"},"bob":{"role":"owner"}}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// ownership cannot move to someone else
	w = e.do(t, http.MethodPut, "/api/documents/"+id+"/members", "alice", `{"members":{"bob":{"role":"owner"}}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodPut, "/api/documents/"+id+"/members", "alice",
		`{"members":{"alice":{"role":"editor"},"bob":{"role":"owner"}}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	got, _ := e.repo.Get(context.Background(), id)
	require.Equal(t, "alice", got.OwnerID)
	require.Equal(t, document.RoleOwner, got.Members["alice"].Role)
	require.NotContains(t, got.Members, "bob")

	w = e.do(t, http.MethodPost, "/api/documents/"+id+"/members", "alice", `{"email":"nobody@example.com"}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/documents/"+id+"/members", "alice", `{"email":"Bob@Example.com"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, _ = e.repo.Get(context.Background(), id)
	require.Equal(t, document.RoleViewer, got.Members["bob"].Role)
	require.Equal(t, "Bob", got.Members["bob"].Name)

	// bob now sees it but cannot reshare
	w = e.do(t, http.MethodGet, "/api/documents/"+id, "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPatch, "/api/documents/"+id+"/members/bob", "bob", `{"role":"editor"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPatch, "/api/documents/"+id+"/members/bob", "alice", `{"role":"editor"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got, _ = e.repo.Get(context.Background(), id)
	require.Equal(t, document.RoleEditor, got.Members["bob"].Role)

	w = e.do(t, http.MethodDelete, "/api/documents/"+id+"/members/alice", "alice", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodDelete, "/api/documents/"+id+"/members/bob", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	got, _ = e.repo.Get(context.Background(), id)
	require.Len(t, got.Members, 1)
}

func TestUserLookup(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/api/users/lookup?email=bob@example.com", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "bob", decode[map[string]interface{}](t, w)["id"])

	w = e.do(t, http.MethodGet, "/api/users/lookup?email=zed@example.com", "alice", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpload(t *testing.T) {
	e := newEnv(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("category", "Personal"))
	require.NoError(t, mw.WriteField("tags", "id, travel"))
	fw, err := mw.CreateFormFile("file", "passport.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User", "alice")
	w := httptest.NewRecorder()
	e.g.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	d := decode[document.Document](t, w)
	require.Equal(t, "passport.png", d.Title)
	require.Equal(t, []string{"id", "travel"}, d.Tags)
	require.True(t, strings.HasPrefix(d.StoragePath, "alice/"))
	require.True(t, strings.HasSuffix(d.StoragePath, "-passport.png"))
	require.True(t, e.blobs.Exists(d.StoragePath))
	require.Equal(t, "memory://"+d.StoragePath, d.Content)

	// permanent delete removes the blob too
	w = e.do(t, http.MethodDelete, "/api/documents/"+d.ID, "alice", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.False(t, e.blobs.Exists(d.StoragePath))
}

func TestSharePage(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/documents", "alice", `{"title":"Recipe","category":"Personal","content":"flour"}`)
	id := decode[document.Document](t, w).ID

	w = e.do(t, http.MethodGet, "/api/share/"+id, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	require.Equal(t, "Recipe", body["title"])
	require.NotContains(t, body, "members")

	e.do(t, http.MethodPost, "/api/documents/"+id+"/trash", "alice", "")
	w = e.do(t, http.MethodGet, "/api/share/"+id, "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSocketStreamsSnapshots(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.g)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws?user=alice", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() notify.Message {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, p, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg notify.Message
		require.NoError(t, json.Unmarshal(p, &msg))
		return msg
	}

	first := read()
	require.Equal(t, notify.SnapshotType, first.Type)
	require.JSONEq(t, `[]`, string(first.Payload))

	_, err = e.repo.Create(context.Background(), &document.Document{
		Title: "Scan", Category: document.CategoryWork, Status: document.StatusActive,
		OwnerID: "alice", Members: document.Members{"alice": {Role: document.RoleOwner}},
	})
	require.NoError(t, err)

	// an empty frame may be repeated while the subscription settles
	var docs []document.Document
	for i := 0; i < 5 && len(docs) == 0; i++ {
		next := read()
		require.Equal(t, notify.SnapshotType, next.Type)
		require.NoError(t, json.Unmarshal(next.Payload, &docs))
	}
	require.Len(t, docs, 1)
	require.Equal(t, "Scan", docs[0].Title)
}
