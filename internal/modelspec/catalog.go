package modelspec

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// acronyms beat the generic title caser when deriving display names.
var acronyms = map[string]string{
	"sd":  "SD",
	"xl":  "XL",
	"hd":  "HD",
	"ai":  "AI",
	"api": "API",
}

var titleCaser = cases.Title(language.English)

// DisplayNameFor derives a human-readable name from a model identifier.
func DisplayNameFor(id string) string {
	parts := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	for i, part := range parts {
		if fixed, ok := acronyms[strings.ToLower(part)]; ok {
			parts[i] = fixed
			continue
		}
		parts[i] = titleCaser.String(part)
	}
	return strings.Join(parts, " ")
}

var catalog = buildCatalog()

func buildCatalog() []Spec {
	specs := []Spec{
		{
			ID:                "flux-base",
			Kind:              KindImage,
			MaxPixels:         1048576,
			MinDimension:      256,
			MaxDimension:      2048,
			Step:              64,
			MaxAspectRatio:    4,
			DimensionsEnabled: true,
			AspectRatios:      []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3", "4:5"},
			DefaultTier:       TierStandard,
		},
		{
			ID:                "flux-ultra",
			Kind:              KindImage,
			MaxPixels:         2097152,
			MinDimension:      256,
			MaxDimension:      2304,
			Step:              32,
			MaxAspectRatio:    4,
			DimensionsEnabled: true,
			AspectRatios:      []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3", "4:5"},
			DefaultTier:       TierHigh,
		},
		{
			ID:                "sd-classic",
			Kind:              KindImage,
			MaxPixels:         589824,
			MinDimension:      256,
			MaxDimension:      1024,
			Step:              64,
			MaxAspectRatio:    2,
			DimensionsEnabled: true,
			AspectRatios:      []string{"1:1", "4:3", "3:4", "3:2", "2:3"},
			DefaultTier:       TierLow,
		},
		{
			ID:                "veo-motion",
			Kind:              KindVideo,
			MinDimension:      256,
			MaxDimension:      1920,
			Step:              16,
			DimensionsEnabled: false,
			AspectRatios:      []string{"16:9", "9:16", "1:1"},
			DefaultTier:       TierStandard,
		},
	}
	for i := range specs {
		if specs[i].DisplayName == "" {
			specs[i].DisplayName = DisplayNameFor(specs[i].ID)
		}
	}
	return specs
}

// Catalog returns the built-in model list in stable order.
func Catalog() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a model spec by identifier.
func Lookup(id string) (Spec, bool) {
	for _, spec := range catalog {
		if spec.ID == id {
			return spec, true
		}
	}
	return Spec{}, false
}
