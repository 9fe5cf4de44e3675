package modelspec

import "math"

// Request names the desired shape: either an aspect-ratio token or explicit
// dimensions. When both Width and Height are zero the AspectRatio is used;
// a single explicit dimension anchors that side and derives the other from
// the model's caps.
type Request struct {
	AspectRatio string
	Width       int
	Height      int
}

// Resolve maps a request onto dimensions the model accepts. It is total:
// out-of-range input is clamped, never rejected. The result is always
// step-aligned, within [MinDimension, MaxDimension], and within MaxPixels
// when the model declares a pixel cap.
func Resolve(spec Spec, req Request, tier Tier) Dimensions {
	if !spec.DimensionsEnabled {
		return Default(spec)
	}
	tier = normalizeTier(tier)

	switch {
	case req.Width > 0 && req.Height > 0:
		return resolveExplicit(spec, req.Width, req.Height)
	case req.Width > 0:
		w := clampDim(spec, req.Width)
		return Dimensions{Width: w, Height: boundOther(spec, w)}
	case req.Height > 0:
		h := clampDim(spec, req.Height)
		return Dimensions{Width: boundOther(spec, h), Height: h}
	}

	ratio := req.AspectRatio
	if ratio == "" {
		ratio = defaultRatio(spec)
	}
	if d, ok := presetFor(ratio, tier); ok && fits(spec, d) {
		return d
	}
	rv, ok := ratioValue(ratio)
	if !ok {
		rv = 1
	}
	return fromBudget(spec, rv, tier)
}

// ResolveLinked recomputes the non-anchored dimension after one side changed
// while linked mode holds the aspect ratio. ratio is width divided by height.
func ResolveLinked(spec Spec, anchor int, anchorIsWidth bool, ratio float64, tier Tier) Dimensions {
	if ratio <= 0 {
		ratio = 1
	}
	if anchorIsWidth {
		h := int(math.Round(float64(anchor) / ratio))
		return Resolve(spec, Request{Width: anchor, Height: h}, tier)
	}
	w := int(math.Round(float64(anchor) * ratio))
	return Resolve(spec, Request{Width: w, Height: anchor}, tier)
}

// FitOrDefault keeps dims when the model accepts them unchanged; otherwise it
// returns the model's default dimensions and false, signalling the caller to
// reset the aspect ratio to 1:1.
func FitOrDefault(spec Spec, dims Dimensions) (Dimensions, bool) {
	if spec.DimensionsEnabled && dims.Width > 0 && dims.Height > 0 {
		resolved := resolveExplicit(spec, dims.Width, dims.Height)
		if resolved == dims {
			return dims, true
		}
	}
	return Default(spec), false
}

// Default returns the model's first supported aspect ratio resolved at its
// default tier.
func Default(spec Spec) Dimensions {
	tier := spec.DefaultTier
	if tier == "" {
		tier = TierStandard
	}
	ratio := defaultRatio(spec)
	if d, ok := presetFor(ratio, tier); ok && (!spec.DimensionsEnabled || fits(spec, d)) {
		return d
	}
	rv, ok := ratioValue(ratio)
	if !ok {
		rv = 1
	}
	return fromBudget(spec, rv, tier)
}

func defaultRatio(spec Spec) string {
	if len(spec.AspectRatios) > 0 {
		return spec.AspectRatios[0]
	}
	return DefaultAspectRatio
}

// resolveExplicit clamps an explicit pair into the model's constraint box,
// shrinking the height first (the width anchors the aspect) and the width
// only when the pixel budget still cannot be met.
func resolveExplicit(spec Spec, width, height int) Dimensions {
	w := clampDim(spec, width)
	h := clampDim(spec, height)

	if spec.MaxAspectRatio > 0 {
		maxH := alignDown(int(float64(w)*spec.MaxAspectRatio), spec.Step)
		minH := alignUp(int(math.Ceil(float64(w)/spec.MaxAspectRatio)), spec.Step)
		if maxH >= minH {
			if h > maxH {
				h = maxH
			}
			if h < minH {
				h = minH
			}
		}
	}
	if spec.MaxPixels > 0 && w*h > spec.MaxPixels {
		h = clampDim(spec, spec.MaxPixels/w)
	}
	if spec.MaxPixels > 0 && w*h > spec.MaxPixels {
		// Height already sits at the minimum; give ground on the width.
		w = clampDim(spec, spec.MaxPixels/h)
	}
	return Dimensions{Width: w, Height: h}
}

// boundOther derives the maximum permissible opposite dimension for a single
// anchored side.
func boundOther(spec Spec, anchor int) int {
	bound := spec.MaxDimension
	if spec.MaxPixels > 0 {
		if byPixels := spec.MaxPixels / anchor; byPixels < bound {
			bound = byPixels
		}
	}
	if spec.MaxAspectRatio > 0 {
		if byRatio := int(float64(anchor) * spec.MaxAspectRatio); byRatio < bound {
			bound = byRatio
		}
	}
	return clampDim(spec, bound)
}

// fromBudget computes dimensions for a ratio directly from a tier's pixel
// budget, used when no preset survives the model's caps.
func fromBudget(spec Spec, ratio float64, tier Tier) Dimensions {
	if spec.MaxAspectRatio > 0 {
		if ratio > spec.MaxAspectRatio {
			ratio = spec.MaxAspectRatio
		}
		if ratio < 1/spec.MaxAspectRatio {
			ratio = 1 / spec.MaxAspectRatio
		}
	}
	budget := normalizeTier(tier).PixelBudget()
	if spec.MaxPixels > 0 && budget > spec.MaxPixels {
		budget = spec.MaxPixels
	}
	w := int(math.Round(math.Sqrt(float64(budget) * ratio)))
	h := int(math.Round(math.Sqrt(float64(budget) / ratio)))
	return resolveExplicit(spec, w, h)
}

func fits(spec Spec, d Dimensions) bool {
	if d.Width < spec.MinDimension || d.Width > spec.MaxDimension {
		return false
	}
	if d.Height < spec.MinDimension || d.Height > spec.MaxDimension {
		return false
	}
	if spec.MaxPixels > 0 && d.Width*d.Height > spec.MaxPixels {
		return false
	}
	if spec.Step > 1 && (d.Width%spec.Step != 0 || d.Height%spec.Step != 0) {
		return false
	}
	if spec.MaxAspectRatio > 0 {
		long, short := d.Width, d.Height
		if short > long {
			long, short = short, long
		}
		if float64(long) > float64(short)*spec.MaxAspectRatio {
			return false
		}
	}
	return true
}

// clampDim clamps a single dimension into [MinDimension, MaxDimension] and
// aligns it to the model's step, never rounding up past the hard cap.
func clampDim(spec Spec, v int) int {
	if v > spec.MaxDimension {
		v = spec.MaxDimension
	}
	if v < spec.MinDimension {
		v = spec.MinDimension
	}
	aligned := alignDown(v, spec.Step)
	if aligned < spec.MinDimension {
		aligned = alignUp(spec.MinDimension, spec.Step)
		if aligned > spec.MaxDimension {
			aligned = alignDown(spec.MaxDimension, spec.Step)
		}
	}
	return aligned
}

func alignDown(v, step int) int {
	if step <= 1 {
		return v
	}
	return v - v%step
}

func alignUp(v, step int) int {
	if step <= 1 {
		return v
	}
	if rem := v % step; rem != 0 {
		return v + step - rem
	}
	return v
}
