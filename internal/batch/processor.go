// Package batch hosts the worker loop that advances batch generation jobs.
// Each invocation processes exactly one item and, while the job stays
// runnable, schedules its own next invocation through the durable scheduler.
// Returning between items instead of looping is what lets a batch survive
// client disconnects and process restarts.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra"
	"github.com/Simplereally/bloomstudio-sub000/internal/providers/diffusion"
)

// HandlerRef is the scheduler ref the processor registers under.
const HandlerRef = "batch.process"

// ProcessArgs is the invocation payload carried by the scheduler.
type ProcessArgs struct {
	JobID string `json:"job_id"`
}

// JobStore is the slice of the record store the processor mutates. Every
// method is a single atomic read-modify-write against the durable record.
type JobStore interface {
	ClaimBatchItem(ctx context.Context, id string) (domain.BatchJob, bool, error)
	RecordItemSuccess(ctx context.Context, id string) (domain.BatchJob, error)
	RecordItemFailure(ctx context.Context, arg db.RecordItemFailureParams) (domain.BatchJob, error)
}

// AssetStore persists generated asset records.
type AssetStore interface {
	CreateGeneratedAsset(ctx context.Context, arg db.CreateAssetParams) (domain.GeneratedAsset, error)
}

// CredentialSource resolves the owner's provider credential.
type CredentialSource interface {
	Token(ctx context.Context, ownerID string) (string, error)
}

// ObjectStore persists raw asset bytes.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Rearmer schedules the next invocation.
type Rearmer interface {
	After(ctx context.Context, delay time.Duration, ref string, args any) (string, error)
}

// ProcessorConfig wires the processor's collaborators.
type ProcessorConfig struct {
	Jobs             JobStore
	Assets           AssetStore
	Credentials      CredentialSource
	Generator        diffusion.Generator
	Storage          ObjectStore
	Rearm            Rearmer
	Logger           infra.Logger
	StepDelay        time.Duration
	FailureThreshold int
}

// Processor advances one batch item per invocation.
type Processor struct {
	jobs             JobStore
	assets           AssetStore
	creds            CredentialSource
	generator        diffusion.Generator
	storage          ObjectStore
	rearm            Rearmer
	logger           infra.Logger
	stepDelay        time.Duration
	failureThreshold int
	randSeed         func() int64
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	threshold := cfg.FailureThreshold
	if threshold < 1 {
		threshold = 3
	}
	return &Processor{
		jobs:             cfg.Jobs,
		assets:           cfg.Assets,
		creds:            cfg.Credentials,
		generator:        cfg.Generator,
		storage:          cfg.Storage,
		rearm:            cfg.Rearm,
		logger:           cfg.Logger,
		stepDelay:        cfg.StepDelay,
		failureThreshold: threshold,
		randSeed:         func() int64 { return int64(rand.Uint64() >> 1) },
	}
}

// HandleInvocation adapts ProcessNext to the scheduler's handler signature.
func (p *Processor) HandleInvocation(ctx context.Context, args json.RawMessage) error {
	var decoded ProcessArgs
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("batch: decode invocation args: %w", err)
	}
	if decoded.JobID == "" {
		return errors.New("batch: invocation args missing job_id")
	}
	return p.ProcessNext(ctx, decoded.JobID)
}

// ProcessNext advances the job by exactly one item.
//
// The claim is a single atomic increment of current_index guarded by the
// job's status, so a duplicate invocation delivered by the scheduler either
// claims the following item or finds nothing to claim. Nothing here acts on
// in-memory state carried across invocations.
func (p *Processor) ProcessNext(ctx context.Context, jobID string) error {
	job, claimed, err := p.jobs.ClaimBatchItem(ctx, jobID)
	if err != nil {
		return fmt.Errorf("batch: claim item: %w", err)
	}
	if !claimed {
		// Paused, terminal, unknown, or exhausted: stop rescheduling.
		return nil
	}
	itemIndex := job.CurrentIndex - 1

	token, err := p.creds.Token(ctx, job.OwnerID)
	if err != nil {
		fatal := errors.Is(err, domain.ErrCredentialExpired)
		return p.settleFailure(ctx, job, itemIndex, err, fatal)
	}

	seed := job.Params.Seed
	if job.Params.SeedMode == domain.SeedModeRandom {
		seed = p.randSeed()
	}

	img, err := p.generator.Generate(ctx, token, diffusion.Request{
		Prompt:         job.Params.Prompt,
		NegativePrompt: job.Params.NegativePrompt,
		Model:          job.Params.Model,
		Width:          job.Params.Width,
		Height:         job.Params.Height,
		Seed:           seed,
		Options:        job.Params.Options,
	})
	if err != nil {
		return p.settleFailure(ctx, job, itemIndex, err, diffusion.IsCredentialInvalid(err))
	}

	key := itemStorageKey(job.ID, itemIndex, img.ContentType)
	savedKey, err := p.storage.Write(ctx, key, img.Data)
	if err != nil {
		return p.settleFailure(ctx, job, itemIndex, fmt.Errorf("persist asset bytes: %w", err), false)
	}

	if _, err := p.assets.CreateGeneratedAsset(ctx, db.CreateAssetParams{
		OwnerID:     job.OwnerID,
		BatchID:     job.ID,
		ItemIndex:   itemIndex,
		StorageKey:  savedKey,
		ContentType: img.ContentType,
		Bytes:       int64(len(img.Data)),
		Width:       img.Width,
		Height:      img.Height,
		Prompt:      job.Params.Prompt,
		Model:       job.Params.Model,
		Seed:        seed,
	}); err != nil {
		return p.settleFailure(ctx, job, itemIndex, fmt.Errorf("persist asset record: %w", err), false)
	}

	updated, err := p.jobs.RecordItemSuccess(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("batch: record success: %w", err)
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Int("item_index", itemIndex).
		Int("completed", updated.CompletedCount).
		Int("total", updated.TotalCount).
		Msg("batch: item completed")

	p.rearmIfRunnable(ctx, updated)
	return nil
}

// settleFailure records a per-item failure and decides whether to continue.
// Fatal failures (dead credential) escalate the job immediately; otherwise
// the item is skipped permanently and the store escalates once the
// consecutive-failure threshold is reached.
func (p *Processor) settleFailure(ctx context.Context, job domain.BatchJob, itemIndex int, cause error, fatal bool) error {
	updated, err := p.jobs.RecordItemFailure(ctx, db.RecordItemFailureParams{
		ID:        job.ID,
		Message:   cause.Error(),
		Fatal:     fatal,
		Threshold: p.failureThreshold,
	})
	if err != nil {
		return fmt.Errorf("batch: record failure: %w", err)
	}

	p.logger.Warn().
		Err(cause).
		Str("job_id", job.ID).
		Int("item_index", itemIndex).
		Bool("fatal", fatal).
		Str("status", string(updated.Status)).
		Msg("batch: item failed")

	p.rearmIfRunnable(ctx, updated)
	return nil
}

// rearmIfRunnable schedules the next invocation while the job remains
// processing with unclaimed items. Scheduling is fire-and-forget; the lease
// on the current invocation covers a transient insert failure.
func (p *Processor) rearmIfRunnable(ctx context.Context, job domain.BatchJob) {
	if job.Status != domain.BatchStatusProcessing || job.Exhausted() {
		return
	}
	if _, err := p.rearm.After(ctx, p.stepDelay, HandlerRef, ProcessArgs{JobID: job.ID}); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("batch: reschedule failed")
	}
}

func itemStorageKey(jobID string, itemIndex int, contentType string) string {
	return fmt.Sprintf("batches/%s/item-%04d%s", jobID, itemIndex, extensionForMIME(contentType))
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
