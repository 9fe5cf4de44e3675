package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
)

type progressEvent struct {
	Status         domain.BatchStatus `json:"status"`
	TotalCount     int                `json:"total_count"`
	CurrentIndex   int                `json:"current_index"`
	CompletedCount int                `json:"completed_count"`
	InFlightCount  int                `json:"in_flight_count"`
	LastError      string             `json:"last_error,omitempty"`
}

// BatchEvents streams batch progress as server-sent events. Each wakeup from
// the broker triggers a fresh snapshot read; the stream closes once the batch
// reaches a terminal status and all in-flight items have settled.
func (a *App) BatchEvents(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	jobID := chi.URLParam(r, "id")

	job, err := a.Store.GetBatchJobForOwner(r.Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		a.Logger.Error().Err(err).Msg("failed to load batch job")
		a.error(w, http.StatusInternalServerError, "internal", "could not load batch")
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	wakeups, cancel := a.Broker.Subscribe(jobID)
	defer cancel()

	if done := a.emitProgress(w, rc, job); done {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-wakeups:
			job, err = a.Store.GetBatchJobForOwner(r.Context(), jobID, userID)
			if err != nil {
				return
			}
			if done := a.emitProgress(w, rc, job); done {
				return
			}
		}
	}
}

// emitProgress writes one SSE frame and reports whether the stream is done.
func (a *App) emitProgress(w http.ResponseWriter, rc *http.ResponseController, job domain.BatchJob) bool {
	payload, err := json.Marshal(progressEvent{
		Status:         job.Status,
		TotalCount:     job.TotalCount,
		CurrentIndex:   job.CurrentIndex,
		CompletedCount: job.CompletedCount,
		InFlightCount:  job.InFlightCount,
		LastError:      job.LastError,
	})
	if err != nil {
		return true
	}
	if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload); err != nil {
		return true
	}
	if err := rc.Flush(); err != nil {
		return true
	}
	return job.Status.Terminal() && job.InFlightCount == 0
}
