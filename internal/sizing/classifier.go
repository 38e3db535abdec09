package sizing

import "github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"

// Pixel-area thresholds separating icon-sized, content-sized and
// hero-sized rasters.
const (
	iconArea    = 64 * 64
	smallArea   = 200 * 200
	contentArea = 600 * 400
)

// Classify assigns an asset its importance tier from structural hints
// alone: pixel dimensions, how much of the viewport it covers, and
// whether it is vector content. Tiers are assigned once at ingestion
// and never downgraded afterwards; the optimizer only acts on them.
func Classify(a *entity.AssetRecord, viewport entity.Viewport) entity.ImportanceTier {
	area := a.Width * a.Height

	// Reference-only records carry no bytes worth protecting.
	if !a.Embedded() {
		return entity.TierMinimal
	}

	coverage := 0.0
	if vp := viewport.Width * viewport.Height; vp > 0 {
		coverage = float64(area) / float64(vp)
	}

	// Hero content: fills most of the viewport, or is a very large
	// raster even on an unknown viewport.
	if coverage >= 0.5 {
		return entity.TierCritical
	}
	if coverage >= 0.25 || area >= 1600*900 {
		return entity.TierHigh
	}

	// Vectors compress poorly and re-encode worse; keep mid-sized
	// vector art above the aggressive rounds.
	if a.IsVector() {
		if area <= iconArea {
			return entity.TierLow
		}
		return entity.TierMedium
	}

	switch {
	case area <= iconArea:
		return entity.TierMinimal
	case area <= smallArea:
		return entity.TierLow
	case area <= contentArea:
		return entity.TierMedium
	default:
		return entity.TierHigh
	}
}

// ClassifyAll fills in the tier for every asset that does not already
// carry one.
func ClassifyAll(p *entity.CapturedPayload) {
	for _, a := range p.Assets {
		if a.Tier == "" {
			a.Tier = Classify(a, p.Viewport)
		}
	}
}
