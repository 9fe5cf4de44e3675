package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra"
	"github.com/Simplereally/bloomstudio-sub000/internal/middleware"
)

// BatchStore is the record-store surface the handlers read and mutate.
// *db.Queries satisfies it.
type BatchStore interface {
	CreateBatchJob(ctx context.Context, arg db.CreateBatchJobParams) (domain.BatchJob, error)
	GetBatchJobForOwner(ctx context.Context, id, ownerID string) (domain.BatchJob, error)
	ListBatchJobsByOwner(ctx context.Context, arg db.ListBatchJobsParams) ([]domain.BatchJob, error)
	PauseBatchJob(ctx context.Context, id, ownerID string) (bool, error)
	ResumeBatchJob(ctx context.Context, id, ownerID string) (bool, error)
	CancelBatchJob(ctx context.Context, id, ownerID string) (bool, error)
	ListAssetsByBatch(ctx context.Context, batchID, ownerID string) ([]domain.GeneratedAsset, error)
	ListAssetsByOwner(ctx context.Context, arg db.ListAssetsParams) ([]domain.GeneratedAsset, error)
	GetAssetForOwner(ctx context.Context, id, ownerID string) (domain.GeneratedAsset, error)
}

// CredentialSource gates batch starts on a live generation credential.
type CredentialSource interface {
	Token(ctx context.Context, ownerID string) (string, error)
}

// Scheduler arms worker loop invocations.
type Scheduler interface {
	After(ctx context.Context, delay time.Duration, ref string, args any) (string, error)
}

// ProgressBroker feeds the event-stream handler.
type ProgressBroker interface {
	Subscribe(jobID string) (<-chan struct{}, func())
}

// ObjectStore serves stored asset bytes.
type ObjectStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// App is the handler container; the router binds its methods to routes.
type App struct {
	Logger      infra.Logger
	Store       BatchStore
	Credentials CredentialSource
	Scheduler   Scheduler
	Broker      ProgressBroker
	Storage     ObjectStore
}

var validate = validator.New()

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"code": code, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
