package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Simplereally/bloomstudio-sub000/internal/modelspec"
)

type resolveDimensionsRequest struct {
	Model       string `json:"model" validate:"required"`
	AspectRatio string `json:"aspect_ratio"`
	Width       int    `json:"width" validate:"omitempty,min=0"`
	Height      int    `json:"height" validate:"omitempty,min=0"`
	Tier        string `json:"tier" validate:"omitempty,oneof=low standard high"`
}

// ResolveDimensions runs the constraint resolver without starting a batch,
// so clients can preview the final dimensions as the user edits settings.
func (a *App) ResolveDimensions(w http.ResponseWriter, r *http.Request) {
	var req resolveDimensionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "missing or invalid fields")
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

	a.json(w, http.StatusOK, dims)
}
