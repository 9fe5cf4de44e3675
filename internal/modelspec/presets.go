package modelspec

import (
	"strconv"
	"strings"
)

// Tier is a named resolution class selecting a target pixel budget
// independent of aspect ratio.
type Tier string

const (
	TierLow      Tier = "low"
	TierStandard Tier = "standard"
	TierHigh     Tier = "high"
)

// PixelBudget returns the target pixel count for the tier. Unknown tiers
// resolve to the standard budget.
func (t Tier) PixelBudget() int {
	switch t {
	case TierLow:
		return 262144 // 512x512
	case TierHigh:
		return 2097152 // 1448x1448
	default:
		return 1048576 // 1024x1024
	}
}

func normalizeTier(t Tier) Tier {
	switch t {
	case TierLow, TierStandard, TierHigh:
		return t
	}
	return TierStandard
}

// DefaultAspectRatio is used when neither the request nor the model supplies
// a ratio, and after a model switch invalidates the previous dimensions.
const DefaultAspectRatio = "1:1"

// presets are standard dimensions per (ratio token, tier). Every entry is a
// multiple of 64 so common step alignments leave them untouched.
var presets = map[string]map[Tier]Dimensions{
	"1:1": {
		TierLow:      {512, 512},
		TierStandard: {1024, 1024},
		TierHigh:     {1408, 1408},
	},
	"16:9": {
		TierLow:      {640, 384},
		TierStandard: {1344, 768},
		TierHigh:     {1920, 1088},
	},
	"9:16": {
		TierLow:      {384, 640},
		TierStandard: {768, 1344},
		TierHigh:     {1088, 1920},
	},
	"4:3": {
		TierLow:      {512, 384},
		TierStandard: {1152, 896},
		TierHigh:     {1600, 1216},
	},
	"3:4": {
		TierLow:      {384, 512},
		TierStandard: {896, 1152},
		TierHigh:     {1216, 1600},
	},
	"3:2": {
		TierLow:      {576, 384},
		TierStandard: {1216, 832},
		TierHigh:     {1728, 1152},
	},
	"2:3": {
		TierLow:      {384, 576},
		TierStandard: {832, 1216},
		TierHigh:     {1152, 1728},
	},
	"4:5": {
		TierLow:      {448, 576},
		TierStandard: {896, 1152},
		TierHigh:     {1280, 1600},
	},
}

func presetFor(ratio string, tier Tier) (Dimensions, bool) {
	byTier, ok := presets[strings.TrimSpace(ratio)]
	if !ok {
		return Dimensions{}, false
	}
	d, ok := byTier[normalizeTier(tier)]
	return d, ok
}

// ratioValue parses a "W:H" token into width/height. Malformed tokens report
// false; callers fall back to a square ratio.
func ratioValue(token string) (float64, bool) {
	parts := strings.SplitN(strings.TrimSpace(token), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, false
	}
	return float64(w) / float64(h), true
}
