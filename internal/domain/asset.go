package domain

import "time"

// AssetVisibility enumerates who may read an asset.
type AssetVisibility string

const (
	AssetVisibilityPrivate AssetVisibility = "private"
	AssetVisibilityPublic  AssetVisibility = "public"
)

// GeneratedAsset records one successfully generated batch item. Assets are
// never written for failed items, and outlive their batch job: deleting a
// job does not cascade to its assets.
type GeneratedAsset struct {
	ID          string
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
	Visibility  AssetVisibility
	CreatedAt   time.Time
}
