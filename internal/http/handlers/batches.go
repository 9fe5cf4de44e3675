package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Simplereally/bloomstudio-sub000/internal/batch"
	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
	"github.com/Simplereally/bloomstudio-sub000/internal/modelspec"
)

type startBatchRequest struct {
	Prompt         string         `json:"prompt" validate:"required"`
	NegativePrompt string         `json:"negative_prompt"`
	Model          string         `json:"model" validate:"required"`
	Count          int            `json:"count"`
	AspectRatio    string         `json:"aspect_ratio"`
	Width          int            `json:"width" validate:"omitempty,min=0"`
	Height         int            `json:"height" validate:"omitempty,min=0"`
	Tier           string         `json:"tier" validate:"omitempty,oneof=low standard high"`
	SeedMode       string         `json:"seed_mode" validate:"omitempty,oneof=fixed random"`
	Seed           int64          `json:"seed"`
	Options        map[string]any `json:"options"`
}

type batchSnapshot struct {
	ID             string                  `json:"id"`
	Status         domain.BatchStatus      `json:"status"`
	TotalCount     int                     `json:"total_count"`
	CurrentIndex   int                     `json:"current_index"`
	CompletedCount int                     `json:"completed_count"`
	InFlightCount  int                     `json:"in_flight_count"`
	LastError      string                  `json:"last_error,omitempty"`
	Params         domain.GenerationParams `json:"params"`
	CreatedAt      string                  `json:"created_at"`
	UpdatedAt      string                  `json:"updated_at"`
}

func snapshotOf(job domain.BatchJob) batchSnapshot {
	return batchSnapshot{
		ID:             job.ID,
		Status:         job.Status,
		TotalCount:     job.TotalCount,
		CurrentIndex:   job.CurrentIndex,
		CompletedCount: job.CompletedCount,
		InFlightCount:  job.InFlightCount,
		LastError:      job.LastError,
		Params:         job.Params,
		CreatedAt:      job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      job.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// StartBatch validates the request, resolves generation dimensions against
// the model's constraints, persists the job and arms the first worker
// invocation. The batch itself runs entirely off-request.
func (a *App) StartBatch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req startBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "missing or invalid fields")
		return
	}
	if req.Count < 1 {
		a.error(w, http.StatusBadRequest, "invalid_count", "count must be at least 1")
		return
	}
	if req.Count > 500 {
		a.error(w, http.StatusBadRequest, "invalid_count", "count exceeds the per-batch limit")
		return
	}

	spec, ok := modelspec.Lookup(req.Model)
	if !ok {
		a.error(w, http.StatusBadRequest, "unknown_model", "unknown model: "+req.Model)
		return
	}
	tier := modelspec.Tier(req.Tier)
	if tier == "" {
		tier = spec.DefaultTier
	}
	dims := modelspec.Resolve(spec, modelspec.Request{
		AspectRatio: req.AspectRatio,
		Width:       req.Width,
		Height:      req.Height,
	}, tier)

	if _, err := a.Credentials.Token(r.Context(), userID); err != nil {
		if errors.Is(err, domain.ErrCredentialExpired) {
			a.error(w, http.StatusForbidden, "credential_expired", "generation credential is missing or expired")
			return
		}
		a.Logger.Error().Err(err).Msg("credential lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not verify credentials")
		return
	}

	seedMode := req.SeedMode
	if seedMode == "" {
		seedMode = domain.SeedModeRandom
	}

	job, err := a.Store.CreateBatchJob(r.Context(), db.CreateBatchJobParams{
		OwnerID:    userID,
		TotalCount: req.Count,
		Params: domain.GenerationParams{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Model:          spec.ID,
			Width:          dims.Width,
			Height:         dims.Height,
			SeedMode:       seedMode,
			Seed:           req.Seed,
			Options:        req.Options,
		},
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to create batch job")
		a.error(w, http.StatusInternalServerError, "internal", "could not create batch")
		return
	}

	if _, err := a.Scheduler.After(r.Context(), 0, batch.HandlerRef, batch.ProcessArgs{JobID: job.ID}); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to arm batch invocation")
		a.error(w, http.StatusInternalServerError, "internal", "could not start batch")
		return
	}

	a.json(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	job, err := a.Store.GetBatchJobForOwner(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		a.Logger.Error().Err(err).Msg("failed to load batch job")
		a.error(w, http.StatusInternalServerError, "internal", "could not load batch")
		return
	}
	a.json(w, http.StatusOK, snapshotOf(job))
}

func (a *App) ListBatches(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	limit, offset := pageParams(r, 20, 100)

	jobs, err := a.Store.ListBatchJobsByOwner(r.Context(), db.ListBatchJobsParams{
		OwnerID: userID,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to list batch jobs")
		a.error(w, http.StatusInternalServerError, "internal", "could not list batches")
		return
	}

	out := make([]batchSnapshot, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, snapshotOf(job))
	}
	a.json(w, http.StatusOK, map[string]any{"batches": out})
}

// PauseBatch asks the worker loop to stop claiming new items. Already-claimed
// items finish on their own; pausing a paused or terminal batch is a no-op.
func (a *App) PauseBatch(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.Store.PauseBatchJob, nil)
}

// ResumeBatch moves a paused batch back to processing and re-arms the worker
// loop. Only an actual transition re-arms, so duplicate resumes stay cheap.
func (a *App) ResumeBatch(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.Store.ResumeBatchJob, func(r *http.Request, id string) error {
		_, err := a.Scheduler.After(r.Context(), 0, batch.HandlerRef, batch.ProcessArgs{JobID: id})
		return err
	})
}

// CancelBatch terminally stops a batch. Idempotent.
func (a *App) CancelBatch(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.Store.CancelBatchJob, nil)
}

func (a *App) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id, ownerID string) (bool, error), onApplied func(r *http.Request, id string) error) {
	userID := a.currentUserID(r)
	id := chi.URLParam(r, "id")

	if _, err := a.Store.GetBatchJobForOwner(r.Context(), id, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		a.Logger.Error().Err(err).Msg("failed to load batch job")
		a.error(w, http.StatusInternalServerError, "internal", "could not load batch")
		return
	}

	applied, err := apply(r.Context(), id, userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", id).Msg("batch transition failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not update batch")
		return
	}
	if applied && onApplied != nil {
		if err := onApplied(r, id); err != nil {
			a.Logger.Error().Err(err).Str("job_id", id).Msg("failed to re-arm batch invocation")
			a.error(w, http.StatusInternalServerError, "internal", "could not resume batch")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageParams(r *http.Request, def, max int) (limit, offset int) {
	limit = def
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > max {
		limit = max
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
