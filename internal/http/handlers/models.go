package handlers

import (
	"net/http"

	"github.com/Simplereally/bloomstudio-sub000/internal/modelspec"
)

type modelView struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"display_name"`
	Kind              string   `json:"kind"`
	DimensionsEnabled bool     `json:"dimensions_enabled"`
	MaxPixels         int      `json:"max_pixels"`
	MinDimension      int      `json:"min_dimension"`
	MaxDimension      int      `json:"max_dimension"`
	Step              int      `json:"step"`
	MaxAspectRatio    float64  `json:"max_aspect_ratio"`
	AspectRatios      []string `json:"aspect_ratios"`
	DefaultTier       string   `json:"default_tier"`
}

// ListModels returns the generation model catalog with each model's
// dimension constraints, so clients can build pickers without hardcoding.
func (a *App) ListModels(w http.ResponseWriter, r *http.Request) {
	catalog := modelspec.Catalog()
	out := make([]modelView, 0, len(catalog))
	for _, spec := range catalog {
		out = append(out, modelView{
			ID:                spec.ID,
			DisplayName:       spec.DisplayName,
			Kind:              string(spec.Kind),
			DimensionsEnabled: spec.DimensionsEnabled,
			MaxPixels:         spec.MaxPixels,
			MinDimension:      spec.MinDimension,
			MaxDimension:      spec.MaxDimension,
			Step:              spec.Step,
			MaxAspectRatio:    spec.MaxAspectRatio,
			AspectRatios:      spec.AspectRatios,
			DefaultTier:       string(spec.DefaultTier),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"models": out})
}
