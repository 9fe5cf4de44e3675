package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
)

const assetColumns = `id, owner_id, batch_id, item_index, storage_key, content_type,
bytes, width, height, prompt, model, seed, visibility, created_at`

func scanAsset(row pgx.Row) (domain.GeneratedAsset, error) {
	var (
		asset      domain.GeneratedAsset
		visibility string
	)
	err := row.Scan(
		&asset.ID,
		&asset.OwnerID,
		&asset.BatchID,
		&asset.ItemIndex,
		&asset.StorageKey,
		&asset.ContentType,
		&asset.Bytes,
		&asset.Width,
		&asset.Height,
		&asset.Prompt,
		&asset.Model,
		&asset.Seed,
		&visibility,
		&asset.CreatedAt,
	)
	if err != nil {
		return domain.GeneratedAsset{}, err
	}
	asset.Visibility = domain.AssetVisibility(visibility)
	return asset, nil
}

type CreateAssetParams struct {
	OwnerID     string
	BatchID     string
	ItemIndex   int
	StorageKey  string
	ContentType string
	Bytes       int64
	Width       int
	Height      int
	Prompt      string
	Model       string
	Seed        int64
}

func (q *Queries) CreateGeneratedAsset(ctx context.Context, arg CreateAssetParams) (domain.GeneratedAsset, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO generated_assets
    (owner_id, batch_id, item_index, storage_key, content_type, bytes, width, height, prompt, model, seed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+assetColumns+`
`, arg.OwnerID, arg.BatchID, arg.ItemIndex, arg.StorageKey, arg.ContentType,
		arg.Bytes, arg.Width, arg.Height, arg.Prompt, arg.Model, arg.Seed)
	return scanAsset(row)
}

func (q *Queries) GetAssetForOwner(ctx context.Context, id, ownerID string) (domain.GeneratedAsset, error) {
	row := q.db.QueryRow(ctx, `
SELECT `+assetColumns+`
FROM generated_assets
WHERE id = $1 AND owner_id = $2
`, id, ownerID)
	asset, err := scanAsset(row)
	if isNoRows(err) {
		return domain.GeneratedAsset{}, domain.ErrNotFound
	}
	return asset, err
}

func (q *Queries) ListAssetsByBatch(ctx context.Context, batchID, ownerID string) ([]domain.GeneratedAsset, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+assetColumns+`
FROM generated_assets
WHERE batch_id = $1 AND owner_id = $2
ORDER BY item_index ASC
`, batchID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssets(rows)
}

type ListAssetsParams struct {
	OwnerID string
	Limit   int
	Offset  int
}

func (q *Queries) ListAssetsByOwner(ctx context.Context, arg ListAssetsParams) ([]domain.GeneratedAsset, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+assetColumns+`
FROM generated_assets
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, arg.OwnerID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssets(rows)
}

func collectAssets(rows pgx.Rows) ([]domain.GeneratedAsset, error) {
	var assets []domain.GeneratedAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}
