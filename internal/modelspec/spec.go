// Package modelspec holds the per-model generation constraints and the
// resolver that maps aspect ratios, resolution tiers, and raw width/height
// requests onto dimensions a model will actually accept. Everything here is
// pure and stateless; callers may share specs freely across goroutines.
package modelspec

// Kind distinguishes image models from video models.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Spec describes the dimension constraints of one generation model.
//
// MaxPixels caps width*height; zero means no pixel cap. MaxAspectRatio caps
// the longest-to-shortest side ratio; zero means uncapped. Step is the
// alignment granularity both dimensions must be a multiple of.
type Spec struct {
	ID                string
	DisplayName       string
	Kind              Kind
	MaxPixels         int
	MinDimension      int
	MaxDimension      int
	Step              int
	MaxAspectRatio    float64
	DimensionsEnabled bool
	AspectRatios      []string
	DefaultTier       Tier
}

// Dimensions is a concrete width/height pair in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
