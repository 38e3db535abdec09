// Package optimizer shrinks a capture's embedded assets toward a byte
// budget. Reduction is progressive: each round targets one importance
// tier, least important first, and the amount of recompression applied
// to an asset depends on both its tier and how far the payload
// currently overshoots the budget. Mild overage barely touches
// anything; extreme overage empties everything but the hero content.
package optimizer

import (
	"log/slog"
	"sort"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/sizing"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/metrics"
)

// Pressure classifies how far the estimated size exceeds the target.
type Pressure int

const (
	PressureNone Pressure = iota
	PressureModerate
	PressureHigh
	PressureExtreme
)

func (p Pressure) String() string {
	switch p {
	case PressureNone:
		return "none"
	case PressureModerate:
		return "moderate"
	case PressureHigh:
		return "high"
	default:
		return "extreme"
	}
}

// PressureFor maps an estimated/target ratio onto a discrete band.
func PressureFor(estimated, target int64) Pressure {
	if target <= 0 || estimated <= target {
		return PressureNone
	}
	ratio := float64(estimated) / float64(target)
	switch {
	case ratio <= 1.5:
		return PressureModerate
	case ratio <= 2.5:
		return PressureHigh
	default:
		return PressureExtreme
	}
}

// Optimizer rewrites asset data in place under a byte budget. It never
// errors for "still too big": when no further safe reduction exists it
// reports the residual size and leaves the fallback decision (chunked
// transfer) to the caller.
type Optimizer struct {
	TargetBytes    int64
	HardLimitBytes int64
}

// New returns an optimizer for the given budgets. HardLimitBytes of
// zero disables the salvage pass.
func New(targetBytes, hardLimitBytes int64) *Optimizer {
	return &Optimizer{TargetBytes: targetBytes, HardLimitBytes: hardLimitBytes}
}

// Tier rounds in execution order, least important first. Critical is
// deliberately absent: only the hard-limit salvage pass may touch it.
var roundOrder = []entity.ImportanceTier{
	entity.TierMinimal,
	entity.TierLow,
	entity.TierMedium,
	entity.TierHigh,
}

// qualityFor returns the JPEG re-encode quality for one asset, as a
// function of its tier and the current pressure band. Zero means the
// tier is not touched at this pressure.
func qualityFor(tier entity.ImportanceTier, pressure Pressure) int {
	switch tier {
	case entity.TierLow:
		switch pressure {
		case PressureModerate:
			return 40
		case PressureHigh:
			return 25
		case PressureExtreme:
			return 15
		}
	case entity.TierMedium:
		switch pressure {
		case PressureModerate:
			return 60
		case PressureHigh:
			return 45
		case PressureExtreme:
			return 30
		}
	case entity.TierHigh:
		// High-tier assets are only touched under extreme pressure,
		// and then conservatively.
		if pressure == PressureExtreme {
			return 55
		}
	}
	return 0
}

// aggressiveQuality is the threshold below which a re-encode counts as
// aggressive in the report.
const aggressiveQuality = 45

// Optimize runs bounded reduction rounds over the payload's assets
// until the estimated size is under TargetBytes or no further safe
// reduction exists. The payload is mutated in place; the returned
// report is also attached to it.
func (o *Optimizer) Optimize(p *entity.CapturedPayload) *entity.OptimizationReport {
	report := &entity.OptimizationReport{
		OriginalSizeMB: sizing.EstimateMB(p),
	}

	estimated := sizing.EstimateBytes(p)
	if o.TargetBytes <= 0 || estimated <= o.TargetBytes {
		report.OptimizedSizeMB = report.OriginalSizeMB
		report.PreservedAssetIDs = assetIDs(p)
		p.Report = report
		return report
	}

	slog.Info("Payload over target, starting optimization",
		"estimated_mb", report.OriginalSizeMB,
		"target_mb", float64(o.TargetBytes)/(1<<20),
		"pressure", PressureFor(estimated, o.TargetBytes).String())

	report.Applied = true
	touched := map[string]bool{}

	for _, tier := range roundOrder {
		pressure := PressureFor(estimated, o.TargetBytes)
		if pressure == PressureNone {
			break
		}
		candidates := assetsInTier(p, tier)
		if len(candidates) == 0 {
			continue
		}

		saved := o.runRound(p, tier, pressure, candidates, report, touched)
		report.RoundsRun++
		metrics.OptimizationRoundsTotal.Inc()
		metrics.OptimizationBytesSavedTotal.Add(float64(saved))

		estimated = sizing.EstimateBytes(p)
		slog.Debug("Optimization round finished",
			"tier", string(tier), "saved_bytes", saved, "estimated_mb", float64(estimated)/(1<<20))

		if estimated <= o.TargetBytes {
			break
		}
		// A round with candidates that freed nothing means further
		// rounds of the same kind cannot converge either.
		if saved == 0 {
			break
		}
	}

	if o.HardLimitBytes > 0 && estimated > o.HardLimitBytes {
		o.salvage(p, report, touched)
		estimated = sizing.EstimateBytes(p)
	}

	for _, a := range p.Assets {
		if !touched[a.ID] {
			report.PreservedAssetIDs = append(report.PreservedAssetIDs, a.ID)
		}
	}
	sort.Strings(report.PreservedAssetIDs)
	report.OptimizedSizeMB = float64(estimated) / (1 << 20)
	p.Report = report

	slog.Info("Optimization finished",
		"rounds", report.RoundsRun,
		"original_mb", report.OriginalSizeMB,
		"optimized_mb", report.OptimizedSizeMB,
		"removed", len(report.RemovedAssetIDs),
		"aggressive", len(report.AggressivelyOptimizedAssetIDs))
	return report
}

// runRound applies one tier's reduction. The minimal round removes
// assets outright and vectorizes small icons across the low tiers;
// later rounds re-encode raster data at tier/pressure quality.
func (o *Optimizer) runRound(p *entity.CapturedPayload, tier entity.ImportanceTier, pressure Pressure, candidates []string, report *entity.OptimizationReport, touched map[string]bool) int64 {
	var saved int64

	if tier == entity.TierMinimal {
		for _, key := range candidates {
			a := p.Assets[key]
			saved += int64(len(a.Data))
			report.RemovedAssetIDs = append(report.RemovedAssetIDs, a.ID)
			touched[a.ID] = true
			delete(p.Assets, key)
		}
		// Icon vectorization rides on the first round: small low-tier
		// rasters become flat SVG placeholders when that is smaller.
		for _, key := range assetsInTier(p, entity.TierLow) {
			a := p.Assets[key]
			if freed := vectorizeIcon(a); freed > 0 {
				saved += freed
				touched[a.ID] = true
			}
		}
		return saved
	}

	quality := qualityFor(tier, pressure)
	if quality == 0 {
		return 0
	}
	for _, key := range candidates {
		a := p.Assets[key]
		freed, err := recompress(a, quality)
		if err != nil {
			// Undecodable data (vectors, exotic formats) is left as is;
			// the next tier may still get the payload under budget.
			slog.Debug("Skipping asset recompression", "asset", a.ID, "error", err)
			continue
		}
		if freed > 0 {
			saved += freed
			touched[a.ID] = true
			if quality <= aggressiveQuality {
				report.AggressivelyOptimizedAssetIDs = append(report.AggressivelyOptimizedAssetIDs, a.ID)
			}
		}
	}
	return saved
}

// salvage is the hard-limit pass: the screenshot preview goes first,
// then critical assets are conservatively re-encoded. This is the only
// place critical data may be rewritten, and only because the payload
// would otherwise exceed the hard ceiling.
func (o *Optimizer) salvage(p *entity.CapturedPayload, report *entity.OptimizationReport, touched map[string]bool) {
	if p.Screenshot != "" {
		slog.Warn("Hard limit exceeded, dropping screenshot preview",
			"screenshot_bytes", len(p.Screenshot))
		p.Screenshot = ""
		if sizing.EstimateBytes(p) <= o.HardLimitBytes {
			return
		}
	}

	for _, key := range assetsInTier(p, entity.TierCritical) {
		a := p.Assets[key]
		freed, err := recompress(a, 60)
		if err != nil || freed == 0 {
			continue
		}
		touched[a.ID] = true
		slog.Warn("Hard limit forced critical asset re-encode", "asset", a.ID, "freed_bytes", freed)
		if sizing.EstimateBytes(p) <= o.HardLimitBytes {
			return
		}
	}
}

// assetsInTier returns registry keys for embedded assets of one tier,
// sorted for deterministic round order.
func assetsInTier(p *entity.CapturedPayload, tier entity.ImportanceTier) []string {
	var keys []string
	for key, a := range p.Assets {
		if a.Tier == tier && a.Embedded() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func assetIDs(p *entity.CapturedPayload) []string {
	ids := make([]string, 0, len(p.Assets))
	for _, a := range p.Assets {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return ids
}
