package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
	"github.com/Simplereally/bloomstudio-sub000/pkg/zip"
)

type assetView struct {
	ID          string `json:"id"`
	BatchID     string `json:"batch_id"`
	ItemIndex   int    `json:"item_index"`
	ContentType string `json:"content_type"`
	Bytes       int64  `json:"bytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	Seed        int64  `json:"seed"`
	CreatedAt   string `json:"created_at"`
}

func viewOf(a domain.GeneratedAsset) assetView {
	return assetView{
		ID:          a.ID,
		BatchID:     a.BatchID,
		ItemIndex:   a.ItemIndex,
		ContentType: a.ContentType,
		Bytes:       a.Bytes,
		Width:       a.Width,
		Height:      a.Height,
		Prompt:      a.Prompt,
		Model:       a.Model,
		Seed:        a.Seed,
		CreatedAt:   a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// BatchAssets lists the assets a batch has produced so far, ordered by item
// index. Available while the batch is still running.
func (a *App) BatchAssets(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	assets, err := a.Store.ListAssetsByBatch(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to list batch assets")
		a.error(w, http.StatusInternalServerError, "internal", "could not list assets")
		return
	}
	out := make([]assetView, 0, len(assets))
	for _, asset := range assets {
		out = append(out, viewOf(asset))
	}
	a.json(w, http.StatusOK, map[string]any{"assets": out})
}

// BatchZip streams every stored asset of a batch as a single zip archive.
func (a *App) BatchZip(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	batchID := chi.URLParam(r, "id")

	if _, err := a.Store.GetBatchJobForOwner(r.Context(), batchID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		a.Logger.Error().Err(err).Msg("failed to load batch job")
		a.error(w, http.StatusInternalServerError, "internal", "could not load batch")
		return
	}

	assets, err := a.Store.ListAssetsByBatch(r.Context(), batchID, userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to list batch assets")
		a.error(w, http.StatusInternalServerError, "internal", "could not build archive")
		return
	}

	entries := make([]zip.Asset, 0, len(assets))
	for _, asset := range assets {
		data, err := a.Storage.Read(r.Context(), asset.StorageKey)
		if err != nil {
			a.Logger.Error().Err(err).Str("key", asset.StorageKey).Msg("failed to read stored asset")
			continue
		}
		entries = append(entries, zip.Asset{
			Filename: fmt.Sprintf("item-%04d%s", asset.ItemIndex, path.Ext(asset.StorageKey)),
			MIME:     asset.ContentType,
			Data:     data,
		})
	}

	archive := zip.ArchiveAssets(entries)
	if archive == nil {
		a.error(w, http.StatusInternalServerError, "internal", "could not build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch-"+batchID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// ListAssets lists the caller's generated assets across batches, newest first.
func (a *App) ListAssets(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	limit, offset := pageParams(r, 50, 200)

	assets, err := a.Store.ListAssetsByOwner(r.Context(), db.ListAssetsParams{
		OwnerID: userID,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to list assets")
		a.error(w, http.StatusInternalServerError, "internal", "could not list assets")
		return
	}
	out := make([]assetView, 0, len(assets))
	for _, asset := range assets {
		out = append(out, viewOf(asset))
	}
	a.json(w, http.StatusOK, map[string]any{"assets": out})
}

// DownloadAsset serves one stored asset's bytes with its recorded media type.
func (a *App) DownloadAsset(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	asset, err := a.Store.GetAssetForOwner(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "asset not found")
			return
		}
		a.Logger.Error().Err(err).Msg("failed to load asset")
		a.error(w, http.StatusInternalServerError, "internal", "could not load asset")
		return
	}

	data, err := a.Storage.Read(r.Context(), asset.StorageKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("key", asset.StorageKey).Msg("failed to read stored asset")
		a.error(w, http.StatusNotFound, "not_found", "asset data not found")
		return
	}

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(asset.StorageKey)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
