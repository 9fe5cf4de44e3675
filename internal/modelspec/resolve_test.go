package modelspec

import "testing"

func testSpec() Spec {
	return Spec{
		ID:                "flux-base",
		Kind:              KindImage,
		MaxPixels:         1048576,
		MinDimension:      256,
		MaxDimension:      2048,
		Step:              64,
		MaxAspectRatio:    4,
		DimensionsEnabled: true,
		AspectRatios:      []string{"1:1", "16:9", "9:16"},
		DefaultTier:       TierStandard,
	}
}

func assertValid(t *testing.T, spec Spec, d Dimensions) {
	t.Helper()
	if d.Width < spec.MinDimension || d.Width > spec.MaxDimension {
		t.Fatalf("width %d outside [%d, %d]", d.Width, spec.MinDimension, spec.MaxDimension)
	}
	if d.Height < spec.MinDimension || d.Height > spec.MaxDimension {
		t.Fatalf("height %d outside [%d, %d]", d.Height, spec.MinDimension, spec.MaxDimension)
	}
	if spec.Step > 1 && (d.Width%spec.Step != 0 || d.Height%spec.Step != 0) {
		t.Fatalf("dimensions %dx%d not aligned to step %d", d.Width, d.Height, spec.Step)
	}
	if spec.MaxPixels > 0 && d.Width*d.Height > spec.MaxPixels {
		t.Fatalf("pixels %d exceed cap %d", d.Width*d.Height, spec.MaxPixels)
	}
}

func TestResolveClampsOversizedExplicitWidth(t *testing.T) {
	spec := testSpec()
	got := Resolve(spec, Request{Width: 4096}, TierStandard)
	if got.Width != 2048 {
		t.Fatalf("width = %d, want 2048", got.Width)
	}
	if got.Height != 512 {
		t.Fatalf("height = %d, want 512", got.Height)
	}
	assertValid(t, spec, got)
}

func TestResolveIsIdempotent(t *testing.T) {
	spec := testSpec()
	tests := []struct {
		name string
		req  Request
		tier Tier
	}{
		{"square preset", Request{AspectRatio: "1:1"}, TierStandard},
		{"wide preset", Request{AspectRatio: "16:9"}, TierHigh},
		{"explicit oversized", Request{Width: 4096, Height: 4096}, TierStandard},
		{"explicit misaligned", Request{Width: 1000, Height: 700}, TierStandard},
		{"explicit tiny", Request{Width: 10, Height: 10}, TierLow},
		{"unknown ratio", Request{AspectRatio: "7:5"}, TierStandard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := Resolve(spec, tt.req, tt.tier)
			second := Resolve(spec, Request{Width: first.Width, Height: first.Height}, tt.tier)
			if second != first {
				t.Fatalf("re-resolve = %+v, want %+v", second, first)
			}
		})
	}
}

func TestResolveBoundedness(t *testing.T) {
	models := []Spec{
		testSpec(),
		{
			ID: "flux-ultra", MaxPixels: 2097152, MinDimension: 256, MaxDimension: 2304,
			Step: 32, MaxAspectRatio: 4, DimensionsEnabled: true, DefaultTier: TierHigh,
		},
		{
			ID: "sd-classic", MaxPixels: 589824, MinDimension: 256, MaxDimension: 1024,
			Step: 64, MaxAspectRatio: 2, DimensionsEnabled: true, DefaultTier: TierLow,
		},
		{
			// no pixel cap: bounded by MaxDimension only
			ID: "uncapped", MinDimension: 128, MaxDimension: 1536,
			Step: 8, DimensionsEnabled: true, DefaultTier: TierStandard,
		},
	}
	requests := []Request{
		{AspectRatio: "1:1"}, {AspectRatio: "16:9"}, {AspectRatio: "9:16"},
		{AspectRatio: "4:5"}, {AspectRatio: "12:1"}, {AspectRatio: "garbage"},
		{Width: 1}, {Height: 99999}, {Width: 99999, Height: 1},
		{Width: 640, Height: 480}, {Width: 2047, Height: 2047},
	}
	tiers := []Tier{TierLow, TierStandard, TierHigh, Tier("bogus")}
	for _, spec := range models {
		for _, req := range requests {
			for _, tier := range tiers {
				assertValid(t, spec, Resolve(spec, req, tier))
			}
		}
	}
}

func TestResolveHonorsAspectRatioCap(t *testing.T) {
	spec := testSpec()
	got := Resolve(spec, Request{Width: 2048, Height: 256}, TierStandard)
	if got.Height*4 < got.Width {
		t.Fatalf("aspect ratio %dx%d exceeds cap 4", got.Width, got.Height)
	}
}

func TestResolveIgnoresDimensionsWhenDisabled(t *testing.T) {
	spec := Spec{
		ID: "veo-motion", Kind: KindVideo, MinDimension: 256, MaxDimension: 1920,
		Step: 16, DimensionsEnabled: false,
		AspectRatios: []string{"16:9", "9:16"}, DefaultTier: TierStandard,
	}
	want := Default(spec)
	got := Resolve(spec, Request{Width: 123, Height: 77}, TierHigh)
	if got != want {
		t.Fatalf("resolve = %+v, want default %+v", got, want)
	}
	preset, ok := presetFor("16:9", TierStandard)
	if !ok || want != preset {
		t.Fatalf("default = %+v, want first-ratio preset %+v", want, preset)
	}
}

func TestResolvePresetFallsBackToBudgetWhenOverCap(t *testing.T) {
	spec := Spec{
		ID: "sd-classic", MaxPixels: 589824, MinDimension: 256, MaxDimension: 1024,
		Step: 64, MaxAspectRatio: 2, DimensionsEnabled: true, DefaultTier: TierStandard,
	}
	// The standard 1:1 preset is 1024x1024 = 1048576 px, over this model's cap.
	got := Resolve(spec, Request{AspectRatio: "1:1"}, TierStandard)
	assertValid(t, spec, got)
	if got.Width != got.Height {
		t.Fatalf("square request resolved to %dx%d", got.Width, got.Height)
	}
}

func TestResolveLinkedRecomputesOtherSide(t *testing.T) {
	spec := testSpec()
	got := ResolveLinked(spec, 1024, true, 2, TierStandard)
	if got.Width != 1024 || got.Height != 512 {
		t.Fatalf("linked resolve = %+v, want 1024x512", got)
	}
	got = ResolveLinked(spec, 512, false, 2, TierStandard)
	if got.Width != 1024 || got.Height != 512 {
		t.Fatalf("linked resolve on height = %+v, want 1024x512", got)
	}
}

func TestFitOrDefaultResetsWhenConstraintsChange(t *testing.T) {
	wide := testSpec()
	tight := Spec{
		ID: "sd-classic", MaxPixels: 589824, MinDimension: 256, MaxDimension: 1024,
		Step: 64, MaxAspectRatio: 2, DimensionsEnabled: true,
		AspectRatios: []string{"1:1"}, DefaultTier: TierLow,
	}
	valid := Resolve(wide, Request{AspectRatio: "16:9"}, TierStandard)

	kept, ok := FitOrDefault(wide, valid)
	if !ok || kept != valid {
		t.Fatalf("FitOrDefault rejected valid dims %+v", valid)
	}
	reset, ok := FitOrDefault(tight, valid)
	if ok {
		t.Fatalf("FitOrDefault accepted %+v for the tight model", valid)
	}
	if want := Default(tight); reset != want {
		t.Fatalf("reset dims = %+v, want %+v", reset, want)
	}
}
