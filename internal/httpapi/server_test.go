package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/auth"
	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
)

type fakeProfiles struct {
	submitted []db.ProfileJob
	jobs      map[string]db.ProfileJob
	profiles  map[string]db.Profile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		jobs:     make(map[string]db.ProfileJob),
		profiles: make(map[string]db.Profile),
	}
}

func (f *fakeProfiles) Submit(ctx context.Context, ownerKey, schemaTag string, payload []byte) (db.ProfileJob, error) {
	if err := importer.ValidateSchemaTag(schemaTag); err != nil {
		return db.ProfileJob{}, err
	}
	job := db.ProfileJob{
		JobID:     int64(len(f.submitted) + 1),
		JobUUID:   "11111111-2222-3333-4444-555555555555",
		OwnerKey:  ownerKey,
		SchemaTag: schemaTag,
		Status:    db.JobStatusQueued,
	}
	f.submitted = append(f.submitted, job)
	f.jobs[job.JobUUID] = job
	return job, nil
}

func (f *fakeProfiles) Status(ctx context.Context, jobUUID string) (db.ProfileJob, error) {
	job, ok := f.jobs[jobUUID]
	if !ok {
		return db.ProfileJob{}, db.ErrNoRows
	}
	return job, nil
}

func (f *fakeProfiles) ProfileByOwner(ctx context.Context, ownerKey string) (db.Profile, error) {
	stored, ok := f.profiles[ownerKey]
	if !ok {
		return db.Profile{}, db.ErrNoRows
	}
	return stored, nil
}

type fakeUsers struct {
	users map[string]db.User
}

func (f *fakeUsers) GetUserByUsername(ctx context.Context, username string) (db.User, error) {
	user, ok := f.users[username]
	if !ok {
		return db.User{}, db.ErrNoRows
	}
	return user, nil
}

func newTestServer(t *testing.T, profiles ProfileService, users UserStore) *Server {
	t.Helper()
	return NewServer(profiles, users, zerolog.Nop(), Options{})
}

func decodeJSend(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestHandleImportMintsAnonymousToken(t *testing.T) {
	t.Parallel()

	profiles := newFakeProfiles()
	server := newTestServer(t, profiles, nil)
	e := server.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports?schema=goodreads-csv", strings.NewReader("Title,Author\n"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	body := decodeJSend(t, rec)
	data := body["data"].(map[string]any)
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("expected a minted token for anonymous imports")
	}
	owner, _ := data["owner_key"].(string)
	if owner != "anon:"+token {
		t.Fatalf("owner key %q does not match token %q", owner, token)
	}
	if len(profiles.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(profiles.submitted))
	}
}

func TestHandleImportReusesProvidedToken(t *testing.T) {
	t.Parallel()

	profiles := newFakeProfiles()
	server := newTestServer(t, profiles, nil)
	e := server.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports?schema=storygraph-csv", strings.NewReader("Title,Authors\n"))
	req.Header.Set("X-Import-Token", "abc123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	data := decodeJSend(t, rec)["data"].(map[string]any)
	if data["owner_key"] != "anon:abc123" {
		t.Fatalf("expected reused token owner, got %v", data["owner_key"])
	}
	if _, minted := data["token"]; minted {
		t.Fatal("no new token may be minted when one was provided")
	}
}

func TestHandleImportWithBasicAuth(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashPassword("hunter2pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := &fakeUsers{users: map[string]db.User{
		"reader": {UserID: 42, Username: "reader", PasswordHash: hash},
	}}
	profiles := newFakeProfiles()
	server := newTestServer(t, profiles, users)
	e := server.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports?schema=goodreads-csv", strings.NewReader("Title,Author\n"))
	req.SetBasicAuth("reader", "hunter2pass")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decodeJSend(t, rec)["data"].(map[string]any)
	if data["owner_key"] != "user:42" {
		t.Fatalf("expected user owner key, got %v", data["owner_key"])
	}

	// Wrong password is a 401, not an anonymous fallback.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/imports?schema=goodreads-csv", strings.NewReader("Title,Author\n"))
	req.SetBasicAuth("reader", "wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", rec.Code)
	}
}

func TestHandleImportRejectsUnknownSchema(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, newFakeProfiles(), nil)
	e := server.buildEcho()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports?schema=calibre-db", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleJobStatus(t *testing.T) {
	t.Parallel()

	profiles := newFakeProfiles()
	errText := "boom"
	profiles.jobs["known-job"] = db.ProfileJob{
		JobUUID:   "known-job",
		Status:    db.JobStatusFailed,
		ErrorText: &errText,
	}
	server := newTestServer(t, profiles, nil)
	e := server.buildEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/known-job", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeJSend(t, rec)["data"].(map[string]any)
	if data["status"] != db.JobStatusFailed || data["error"] != "boom" {
		t.Fatalf("unexpected job body: %v", data)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing-job", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestHandleProfileServesStoredPayload(t *testing.T) {
	t.Parallel()

	profiles := newFakeProfiles()
	profiles.profiles["anon:tok"] = db.Profile{
		OwnerKey:    "anon:tok",
		Fingerprint: "deadbeef",
		Payload:     json.RawMessage(`{"stats":{"total_books":2}}`),
	}
	server := newTestServer(t, profiles, nil)
	e := server.buildEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/anon:tok", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	data := decodeJSend(t, rec)["data"].(map[string]any)
	if data["fingerprint"] != "deadbeef" {
		t.Fatalf("unexpected profile body: %v", data)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/profiles/anon:unknown", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown owner, got %d", rec.Code)
	}
}
