package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Simplereally/bloomstudio-sub000/internal/batch"
	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
	"github.com/Simplereally/bloomstudio-sub000/internal/middleware"
)

type stubStore struct {
	mu      sync.Mutex
	jobs    map[string]domain.BatchJob
	assets  []domain.GeneratedAsset
	created []db.CreateBatchJobParams

	pauseApplied  bool
	resumeApplied bool
	cancelApplied bool
}

func newStubStore() *stubStore {
	return &stubStore{jobs: make(map[string]domain.BatchJob)}
}

func (s *stubStore) CreateBatchJob(_ context.Context, arg db.CreateBatchJobParams) (domain.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, arg)
	job := domain.BatchJob{
		ID:         "job-new",
		OwnerID:    arg.OwnerID,
		Status:     domain.BatchStatusPending,
		TotalCount: arg.TotalCount,
		Params:     arg.Params,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubStore) GetBatchJobForOwner(_ context.Context, id, ownerID string) (domain.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return domain.BatchJob{}, domain.ErrNotFound
	}
	return job, nil
}

func (s *stubStore) ListBatchJobsByOwner(_ context.Context, arg db.ListBatchJobsParams) ([]domain.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BatchJob
	for _, job := range s.jobs {
		if job.OwnerID == arg.OwnerID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *stubStore) PauseBatchJob(_ context.Context, id, ownerID string) (bool, error) {
	return s.pauseApplied, nil
}

func (s *stubStore) ResumeBatchJob(_ context.Context, id, ownerID string) (bool, error) {
	return s.resumeApplied, nil
}

func (s *stubStore) CancelBatchJob(_ context.Context, id, ownerID string) (bool, error) {
	return s.cancelApplied, nil
}

func (s *stubStore) ListAssetsByBatch(_ context.Context, batchID, ownerID string) ([]domain.GeneratedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GeneratedAsset
	for _, a := range s.assets {
		if a.BatchID == batchID && a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubStore) ListAssetsByOwner(_ context.Context, arg db.ListAssetsParams) ([]domain.GeneratedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GeneratedAsset
	for _, a := range s.assets {
		if a.OwnerID == arg.OwnerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubStore) GetAssetForOwner(_ context.Context, id, ownerID string) (domain.GeneratedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assets {
		if a.ID == id && a.OwnerID == ownerID {
			return a, nil
		}
	}
	return domain.GeneratedAsset{}, domain.ErrNotFound
}

type armedCall struct {
	ref   string
	delay time.Duration
	args  any
}

type stubScheduler struct {
	mu    sync.Mutex
	calls []armedCall
}

func (s *stubScheduler) After(_ context.Context, delay time.Duration, ref string, args any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, armedCall{ref: ref, delay: delay, args: args})
	return "inv-1", nil
}

type stubCreds struct {
	err error
}

func (s *stubCreds) Token(context.Context, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "tok", nil
}

type stubObjects struct {
	files map[string][]byte
}

func (s *stubObjects) Read(_ context.Context, key string) ([]byte, error) {
	data, ok := s.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

type stubBroker struct{}

func (stubBroker) Subscribe(string) (<-chan struct{}, func()) {
	ch := make(chan struct{})
	return ch, func() {}
}

type fixture struct {
	app       *App
	store     *stubStore
	scheduler *stubScheduler
	creds     *stubCreds
	objects   *stubObjects
}

func newFixture() *fixture {
	store := newStubStore()
	scheduler := &stubScheduler{}
	creds := &stubCreds{}
	objects := &stubObjects{files: make(map[string][]byte)}
	return &fixture{
		app: &App{
			Logger:      zerolog.Nop(),
			Store:       store,
			Credentials: creds,
			Scheduler:   scheduler,
			Broker:      stubBroker{},
			Storage:     objects,
		},
		store:     store,
		scheduler: scheduler,
		creds:     creds,
		objects:   objects,
	}
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestStartBatchAcceptsAndArmsWorker(t *testing.T) {
	f := newFixture()
	body := `{"prompt":"a lighthouse at dusk","model":"flux-base","count":4,"aspect_ratio":"16:9","seed_mode":"fixed","seed":7}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body)), "user-1")
	rec := httptest.NewRecorder()

	f.app.StartBatch(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["job_id"] == "" {
		t.Fatal("expected job_id in response")
	}
	if len(f.store.created) != 1 {
		t.Fatalf("created %d jobs, want 1", len(f.store.created))
	}
	params := f.store.created[0].Params
	if params.Width <= 0 || params.Height <= 0 {
		t.Fatalf("dimensions not resolved: %dx%d", params.Width, params.Height)
	}
	if params.Width%64 != 0 || params.Height%64 != 0 {
		t.Fatalf("dimensions not aligned: %dx%d", params.Width, params.Height)
	}
	if params.SeedMode != domain.SeedModeFixed || params.Seed != 7 {
		t.Fatalf("seed config = %s/%d, want fixed/7", params.SeedMode, params.Seed)
	}
	if len(f.scheduler.calls) != 1 {
		t.Fatalf("armed %d invocations, want 1", len(f.scheduler.calls))
	}
	call := f.scheduler.calls[0]
	if call.ref != batch.HandlerRef {
		t.Fatalf("ref = %q, want %q", call.ref, batch.HandlerRef)
	}
	if args, ok := call.args.(batch.ProcessArgs); !ok || args.JobID != resp["job_id"] {
		t.Fatalf("args = %#v, want ProcessArgs for %q", call.args, resp["job_id"])
	}
}

func TestStartBatchRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"zero count", `{"prompt":"p","model":"flux-base","count":0}`, "invalid_count"},
		{"negative count", `{"prompt":"p","model":"flux-base","count":-2}`, "invalid_count"},
		{"count over limit", `{"prompt":"p","model":"flux-base","count":501}`, "invalid_count"},
		{"missing prompt", `{"model":"flux-base","count":1}`, "bad_request"},
		{"unknown model", `{"prompt":"p","model":"nope","count":1}`, "unknown_model"},
		{"bad seed mode", `{"prompt":"p","model":"flux-base","count":1,"seed_mode":"lucky"}`, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := asUser(httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(tt.body)), "user-1")
			rec := httptest.NewRecorder()

			f.app.StartBatch(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["code"] != tt.wantCode {
				t.Fatalf("code = %q, want %q", resp["code"], tt.wantCode)
			}
			if len(f.store.created) != 0 {
				t.Fatal("job should not be created")
			}
		})
	}
}

func TestStartBatchRequiresLiveCredential(t *testing.T) {
	f := newFixture()
	f.creds.err = domain.ErrCredentialExpired
	body := `{"prompt":"p","model":"flux-base","count":1}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body)), "user-1")
	rec := httptest.NewRecorder()

	f.app.StartBatch(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("credential_expired")) {
		t.Fatalf("body = %s, want credential_expired code", rec.Body.String())
	}
	if len(f.store.created) != 0 {
		t.Fatal("job should not be created without a credential")
	}
	if len(f.scheduler.calls) != 0 {
		t.Fatal("no invocation should be armed")
	}
}

func TestStartBatchRequiresAuth(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(`{"prompt":"p","model":"flux-base","count":1}`))
	rec := httptest.NewRecorder()

	f.app.StartBatch(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetBatchScopedToOwner(t *testing.T) {
	f := newFixture()
	f.store.jobs["job-1"] = domain.BatchJob{ID: "job-1", OwnerID: "user-1", Status: domain.BatchStatusProcessing, TotalCount: 5}

	req := asUser(withURLParam(httptest.NewRequest(http.MethodGet, "/v1/batches/job-1", nil), "id", "job-1"), "user-2")
	rec := httptest.NewRecorder()
	f.app.GetBatch(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-owner status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	req = asUser(withURLParam(httptest.NewRequest(http.MethodGet, "/v1/batches/job-1", nil), "id", "job-1"), "user-1")
	rec = httptest.NewRecorder()
	f.app.GetBatch(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d, want %d", rec.Code, http.StatusOK)
	}
	var snap batchSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.ID != "job-1" || snap.Status != domain.BatchStatusProcessing || snap.TotalCount != 5 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestResumeRearmsOnlyOnTransition(t *testing.T) {
	f := newFixture()
	f.store.jobs["job-1"] = domain.BatchJob{ID: "job-1", OwnerID: "user-1", Status: domain.BatchStatusPaused, TotalCount: 5}
	f.store.resumeApplied = true

	req := asUser(withURLParam(httptest.NewRequest(http.MethodPost, "/v1/batches/job-1/resume", nil), "id", "job-1"), "user-1")
	rec := httptest.NewRecorder()
	f.app.ResumeBatch(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(f.scheduler.calls) != 1 {
		t.Fatalf("armed %d invocations, want 1", len(f.scheduler.calls))
	}

	// Second resume is a no-op and must not arm another invocation.
	f.store.resumeApplied = false
	rec = httptest.NewRecorder()
	f.app.ResumeBatch(rec, asUser(withURLParam(httptest.NewRequest(http.MethodPost, "/v1/batches/job-1/resume", nil), "id", "job-1"), "user-1"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(f.scheduler.calls) != 1 {
		t.Fatalf("armed %d invocations after no-op resume, want 1", len(f.scheduler.calls))
	}
}

func TestPauseAndCancelAreIdempotent(t *testing.T) {
	f := newFixture()
	f.store.jobs["job-1"] = domain.BatchJob{ID: "job-1", OwnerID: "user-1", Status: domain.BatchStatusCancelled}

	for _, handler := range []http.HandlerFunc{f.app.PauseBatch, f.app.CancelBatch} {
		rec := httptest.NewRecorder()
		handler(rec, asUser(withURLParam(httptest.NewRequest(http.MethodPost, "/v1/batches/job-1/pause", nil), "id", "job-1"), "user-1"))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
	}
}

func TestTransitionUnknownJobIs404(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	f.app.CancelBatch(rec, asUser(withURLParam(httptest.NewRequest(http.MethodPost, "/v1/batches/nope/cancel", nil), "id", "nope"), "user-1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestBatchEventsStreamsUntilTerminal(t *testing.T) {
	f := newFixture()
	f.store.jobs["job-1"] = domain.BatchJob{
		ID: "job-1", OwnerID: "user-1",
		Status: domain.BatchStatusCompleted, TotalCount: 3, CurrentIndex: 3, CompletedCount: 3,
	}

	req := asUser(withURLParam(httptest.NewRequest(http.MethodGet, "/v1/batches/job-1/events", nil), "id", "job-1"), "user-1")
	rec := httptest.NewRecorder()
	f.app.BatchEvents(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") {
		t.Fatalf("body = %q, want a progress event", body)
	}
	if !strings.Contains(body, `"status":"completed"`) {
		t.Fatalf("body = %q, want completed status", body)
	}
}
