package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"organizer/internal/auth"
	"organizer/internal/blob"
	"organizer/internal/models"
	"organizer/internal/recurrence"
	"organizer/internal/storage"
	"organizer/internal/storage/local"
)

var pinnedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, recurrence.Location)

type harness struct {
	t      *testing.T
	srv    *Server
	store  storage.Store
	static string
}

func newHarness(t *testing.T, wrap func(storage.Store) storage.Store) *harness {
	t.Helper()
	dir := t.TempDir()
	ls, err := local.Open(filepath.Join(dir, "data"), local.Options{})
	require.NoError(t, err)
	var store storage.Store = ls
	if wrap != nil {
		store = wrap(store)
	}
	blobs, err := blob.Open(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	authSvc, err := auth.NewService(store, auth.Config{
		Secret:     []byte("server-test-secret"),
		BcryptCost: bcrypt.MinCost,
		Now:        func() time.Time { return pinnedNow },
	})
	require.NoError(t, err)

	static := filepath.Join(dir, "web")
	require.NoError(t, os.MkdirAll(filepath.Join(static, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>organizer</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "assets", "app.js"), []byte("console.log(1)"), 0o644))

	srv := New(Deps{
		Store:          store,
		Auth:           authSvc,
		Blobs:          blobs,
		StaticDir:      static,
		MaxUploadBytes: 1 << 20,
		Now:            func() time.Time { return pinnedNow },
	})
	return &harness{t: t, srv: srv, store: store, static: static}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func (h *harness) register(email string) string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/register", "", obj{"email": email, "password": "hunter2", "name": "Tester"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess auth.Session
	decode(h.t, rec, &sess)
	require.NotEmpty(h.t, sess.Token)
	return sess.Token
}

type obj = map[string]any

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(http.MethodGet, "/api/tasks", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := h.register("Ada@Example.com")

	rec = h.do(http.MethodPost, "/api/auth/register", "", obj{"email": "ada@example.com", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", errorOf(t, rec))

	rec = h.do(http.MethodPost, "/api/auth/register", "", obj{"email": "bad", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/api/auth/register", "", obj{"email": "new@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "password is required")

	rec = h.do(http.MethodPost, "/api/auth/login", "", obj{"email": "ada@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/auth/login", "", obj{"email": "ADA@example.com", "password": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login auth.Session
	decode(t, rec, &login)

	rec = h.do(http.MethodGet, "/api/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess auth.Session
	decode(t, rec, &sess)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Empty(t, sess.Token)

	rec = h.do(http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/auth/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "revoked token")

	rec = h.do(http.MethodGet, "/api/auth/session", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "other sessions survive logout")
}

func TestTasksAndCalendar(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register("cal@example.com")

	rec := h.do(http.MethodGet, "/api/tasks", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/tasks", token, obj{"text": "Pay rent", "date": "2024-01-31", "frequency": "monthly", "endDate": "2024-04-30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task models.Task
	decode(t, rec, &task)
	assert.Equal(t, models.FrequencyMonthly, task.Frequency)

	rec = h.do(http.MethodPost, "/api/tasks", token, obj{"text": "Bad", "date": "2024-13-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/api/tasks", token, obj{"text": "Bad", "date": "2024-01-01", "frequency": "hourly"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/api/tasks", token, obj{"text": "Forever", "date": "2024-01-01", "frequency": "daily", "endDate": "2200-01-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "span beyond the expansion limit")

	rec = h.do(http.MethodGet, "/api/occurrences?from=2024-01-01&to=2024-12-31", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var days map[string][]recurrence.Occurrence
	decode(t, rec, &days)
	assert.Len(t, days, 4)
	for _, key := range []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"} {
		assert.Len(t, days[key], 1, key)
	}

	rec = h.do(http.MethodGet, "/api/occurrences?from=2024-02-01&to=2024-01-01", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/calendar?month=2024-02", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Year  int `json:"year"`
		Month int `json:"month"`
		Weeks [][]struct {
			Date  string `json:"date"`
			Items []any  `json:"items"`
		} `json:"weeks"`
	}
	decode(t, rec, &view)
	assert.Equal(t, 2024, view.Year)
	assert.Equal(t, 2, view.Month)
	found := false
	for _, week := range view.Weeks {
		for _, cell := range week {
			if cell.Date == "2024-02-29" {
				found = len(cell.Items) == 1
			}
		}
	}
	assert.True(t, found, "clamped occurrence shows in the February grid")

	rec = h.do(http.MethodGet, "/api/calendar", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	assert.Equal(t, 3, view.Month, "defaults to the current month")

	rec = h.do(http.MethodGet, "/api/calendar?month=March", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/tasks/"+task.ID+"/ics", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	assert.Contains(t, rec.Body.String(), "SUMMARY:Pay rent")

	rec = h.do(http.MethodPut, "/api/tasks", token, obj{"id": task.ID, "text": "Pay rent", "date": "2024-01-31", "frequency": "once"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Task
	decode(t, rec, &updated)
	assert.Equal(t, task.ID, updated.ID)
	assert.Equal(t, models.FrequencyOnce, updated.Frequency)
	assert.Empty(t, updated.EndDate)
	assert.NotContains(t, rec.Body.String(), "endDate")

	rec = h.do(http.MethodPut, "/api/tasks", token, obj{"id": "missing", "text": "x", "date": "2024-01-01"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodDelete, "/api/tasks", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "id is required")
	rec = h.do(http.MethodDelete, "/api/tasks?id="+task.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/occurrences?from=2024-01-01&to=2024-12-31", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestTasksAreOwnerScoped(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.register("alice@example.com")
	bob := h.register("bob@example.com")

	rec := h.do(http.MethodPost, "/api/tasks", alice, obj{"text": "Secret", "date": "2024-03-01"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var task models.Task
	decode(t, rec, &task)

	rec = h.do(http.MethodGet, "/api/tasks", bob, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
	rec = h.do(http.MethodDelete, "/api/tasks?id="+task.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(http.MethodGet, "/api/tasks/"+task.ID+"/ics", bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotesAndUIState(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register("notes@example.com")

	rec := h.do(http.MethodPost, "/api/notes", token, obj{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/notes", token, obj{"content": "groceries"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var note models.Note
	decode(t, rec, &note)

	rec = h.do(http.MethodPut, "/api/notes", token, obj{"id": note.ID, "content": "groceries: milk"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &note)
	assert.Equal(t, "groceries: milk", note.Content)

	rec = h.do(http.MethodGet, "/api/ui-state", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"openNoteIds":[]}`, rec.Body.String())

	rec = h.do(http.MethodPut, "/api/ui-state", token, obj{"openNoteIds": []string{note.ID, "ghost", note.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"openNoteIds":[%q]}`, note.ID), rec.Body.String())

	rec = h.do(http.MethodDelete, "/api/notes?id="+note.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/ui-state", token, nil)
	assert.JSONEq(t, `{"openNoteIds":[]}`, rec.Body.String())
	rec = h.do(http.MethodGet, "/api/notes", token, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func (h *harness) upload(token string, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(h.t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(h.t, err)
		_, err = part.Write(content)
		require.NoError(h.t, err)
	}
	require.NoError(h.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestFiles(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register("files@example.com")

	rec := h.do(http.MethodPost, "/api/files/folders", token, obj{"name": "Receipts"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var folder models.FileItem
	decode(t, rec, &folder)
	assert.Equal(t, models.KindFolder, folder.Kind)

	rec = h.upload(token, map[string]string{"parentId": folder.ID, "title": "March", "date": "2024-03-02"}, "scan.txt", []byte("paid in full"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var file models.FileItem
	decode(t, rec, &file)
	assert.Equal(t, "March.txt", file.Name)
	assert.Equal(t, folder.ID, file.ParentID)
	assert.Equal(t, "2024-03-02", file.Date)
	assert.EqualValues(t, len("paid in full"), file.Size)
	assert.False(t, file.Media)

	rec = h.upload(token, map[string]string{"parentId": file.ID}, "x.txt", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "files cannot hold children")
	rec = h.upload(token, nil, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "file part is required")
	rec = h.upload(token, nil, "big.bin", bytes.Repeat([]byte{1}, 2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = h.do(http.MethodGet, "/api/files/"+file.ID+"/content", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid in full", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rec = h.do(http.MethodGet, "/api/files/"+folder.ID+"/content", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/files?parentId=", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roots []models.FileItem
	decode(t, rec, &roots)
	require.Len(t, roots, 1)
	assert.Equal(t, folder.ID, roots[0].ID)

	rec = h.do(http.MethodGet, "/api/files", token, nil)
	var all []models.FileItem
	decode(t, rec, &all)
	assert.Len(t, all, 2)

	rec = h.do(http.MethodDelete, "/api/files?id="+folder.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Deleted []string `json:"deleted"`
	}
	decode(t, rec, &res)
	assert.ElementsMatch(t, []string{folder.ID, file.ID}, res.Deleted)

	rec = h.do(http.MethodGet, "/api/files/"+file.ID+"/content", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsAndAccountDeletion(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register("me@example.com")
	h.register("taken@example.com")

	rec := h.do(http.MethodGet, "/api/settings", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	decode(t, rec, &user)
	assert.Equal(t, "Tester", user.Name)

	rec = h.do(http.MethodPut, "/api/settings", token, obj{"darkMode": false, "name": "Me"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &user)
	assert.False(t, user.Preferences.DarkMode)
	assert.Equal(t, "Me", user.Name)
	assert.Equal(t, "me@example.com", user.Email)

	rec = h.do(http.MethodPut, "/api/settings", token, obj{"email": "TAKEN@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", errorOf(t, rec))

	rec = h.do(http.MethodPost, "/api/tasks", token, obj{"text": "x", "date": "2024-03-01"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodDelete, "/api/settings/account", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/settings", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(http.MethodPost, "/api/auth/login", "", obj{"email": "me@example.com", "password": "hunter2"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t, nil)
	token := h.register("body@example.com")
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutingFallbacks(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPatch, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = h.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "endpoint not found", errorOf(t, rec))

	rec = h.do(http.MethodGet, "/calendar/2024/03", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "organizer")

	rec = h.do(http.MethodGet, "/assets/app.js", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// faultyStore fails task listing with a fixed error.
type faultyStore struct {
	storage.Store
	err error
}

func (f faultyStore) ListTasks(context.Context, string) ([]models.Task, error) {
	return nil, f.err
}

func (f faultyStore) Ping(context.Context) error {
	return f.err
}

func TestStoreFailuresMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"unavailable", fmt.Errorf("dial: %w", models.ErrUnavailable), http.StatusServiceUnavailable, "service unavailable"},
		{"internal", errors.New("disk on fire at /var/lib/secret"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, func(s storage.Store) storage.Store { return faultyStore{Store: s, err: tc.err} })
			token := h.register("fault@example.com")

			rec := h.do(http.MethodGet, "/api/tasks", token, nil)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.msg, errorOf(t, rec))

			rec = h.do(http.MethodGet, "/api/healthz", "", nil)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
