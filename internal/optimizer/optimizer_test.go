package optimizer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/sizing"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// noisyPNG renders uncompressible pixel noise, the worst case for PNG
// and the case where JPEG re-encoding reliably wins.
func noisyPNG(t *testing.T, w, h int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// opaqueData is valid base64 that does not decode as any image; the
// optimizer must skip it rather than fail.
func opaqueData(n int) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, n/4+1))
}

func testPayload(assets map[string]*entity.AssetRecord) *entity.CapturedPayload {
	return &entity.CapturedPayload{
		CaptureID: "cap-test",
		Capture:   json.RawMessage(`{"type":"FRAME","children":[]}`),
		Viewport:  entity.Viewport{Width: 1920, Height: 1080},
		Assets:    assets,
	}
}

func TestOptimize_UnderTargetReturnsUnchanged(t *testing.T) {
	data := noisyPNG(t, 32, 32)
	p := testPayload(map[string]*entity.AssetRecord{
		"a": {ID: "a", Width: 32, Height: 32, MimeType: "image/png", Data: data, Tier: entity.TierLow},
	})

	report := New(1<<30, 0).Optimize(p)

	require.False(t, report.Applied)
	require.Equal(t, report.OriginalSizeMB, report.OptimizedSizeMB)
	require.Equal(t, data, p.Assets["a"].Data)
	require.Empty(t, report.RemovedAssetIDs)
	require.Contains(t, report.PreservedAssetIDs, "a")
	require.Same(t, report, p.Report)
}

func TestOptimize_DropsMinimalFirstAndPreservesHero(t *testing.T) {
	hero := noisyPNG(t, 200, 200)
	assets := map[string]*entity.AssetRecord{
		"hero": {ID: "hero", Width: 1920, Height: 1080, MimeType: "image/png", Data: hero, Tier: entity.TierCritical},
	}
	// Bulk of the payload: disposable decoration.
	for _, key := range []string{"m1", "m2", "m3"} {
		assets[key] = &entity.AssetRecord{
			ID: key, Width: 16, Height: 16, MimeType: "image/png",
			Data: opaqueData(256 << 10), Tier: entity.TierMinimal,
		}
	}
	p := testPayload(assets)

	// Removing the minimal tier alone gets under this target.
	target := int64(len(hero)) + 128<<10
	report := New(target, 0).Optimize(p)

	require.True(t, report.Applied)
	require.ElementsMatch(t, []string{"m1", "m2", "m3"}, report.RemovedAssetIDs)
	require.Contains(t, report.PreservedAssetIDs, "hero")
	require.Equal(t, hero, p.Assets["hero"].Data)
	require.LessOrEqual(t, sizing.EstimateBytes(p), target)
	require.Equal(t, 1, report.RoundsRun)
}

func TestOptimize_CriticalNeverTouchedByTierRounds(t *testing.T) {
	hero := opaqueData(4 << 20)
	p := testPayload(map[string]*entity.AssetRecord{
		"hero": {ID: "hero", Width: 1920, Height: 1080, MimeType: "image/png", Data: hero, Tier: entity.TierCritical},
	})

	// Impossible target, no hard limit: every round runs dry and the
	// optimizer reports the residual instead of erroring.
	report := New(1024, 0).Optimize(p)

	require.True(t, report.Applied)
	require.Equal(t, hero, p.Assets["hero"].Data)
	require.Contains(t, report.PreservedAssetIDs, "hero")
	require.Greater(t, sizing.EstimateBytes(p), int64(1024))
}

func TestOptimize_ZeroSavingRoundTerminatesLoop(t *testing.T) {
	// The low round has a candidate it cannot shrink; the loop must
	// stop there instead of grinding later tiers.
	p := testPayload(map[string]*entity.AssetRecord{
		"stuck":  {ID: "stuck", Width: 150, Height: 150, MimeType: "image/png", Data: opaqueData(1 << 20), Tier: entity.TierLow},
		"medium": {ID: "medium", Width: 500, Height: 350, MimeType: "image/png", Data: noisyPNG(t, 300, 300), Tier: entity.TierMedium},
	})
	mediumBefore := p.Assets["medium"].Data

	report := New(1024, 0).Optimize(p)

	require.True(t, report.Applied)
	require.Equal(t, mediumBefore, p.Assets["medium"].Data)
	require.Equal(t, 1, report.RoundsRun)
}

func TestOptimize_HardLimitDropsScreenshot(t *testing.T) {
	p := testPayload(map[string]*entity.AssetRecord{
		"hero": {ID: "hero", Width: 1920, Height: 1080, MimeType: "image/png", Data: opaqueData(1 << 20), Tier: entity.TierCritical},
	})
	p.Screenshot = strings.Repeat("s", 8<<20)

	report := New(1024, 4<<20).Optimize(p)

	require.True(t, report.Applied)
	require.Empty(t, p.Screenshot)
	require.LessOrEqual(t, sizing.EstimateBytes(p), int64(4<<20))
}

func TestRecompress_NoisyRasterShrinks(t *testing.T) {
	a := &entity.AssetRecord{
		ID: "n", Width: 128, Height: 128, MimeType: "image/png",
		Data: noisyPNG(t, 128, 128), Tier: entity.TierLow,
	}
	before := len(a.Data)

	freed, err := recompress(a, 15)
	require.NoError(t, err)
	require.Greater(t, freed, int64(0))
	require.Equal(t, "image/jpeg", a.MimeType)
	require.Less(t, len(a.Data), before)
}

func TestRecompress_SkipsVectors(t *testing.T) {
	a := &entity.AssetRecord{ID: "v", MimeType: "image/svg+xml", Data: opaqueData(1024)}
	freed, err := recompress(a, 15)
	require.NoError(t, err)
	require.Zero(t, freed)
}

func TestVectorizeIcon_ReplacesNoisyIcon(t *testing.T) {
	a := &entity.AssetRecord{
		ID: "icon", Width: 64, Height: 64, MimeType: "image/png",
		Data: noisyPNG(t, 64, 64), Tier: entity.TierLow,
	}

	freed := vectorizeIcon(a)
	require.Greater(t, freed, int64(0))
	require.Equal(t, "image/svg+xml", a.MimeType)

	svg, err := base64.StdEncoding.DecodeString(a.Data)
	require.NoError(t, err)
	require.Contains(t, string(svg), `width="64"`)
}

func TestVectorizeIcon_SkipsLargeRasters(t *testing.T) {
	a := &entity.AssetRecord{
		ID: "big", Width: 500, Height: 500, MimeType: "image/png",
		Data: noisyPNG(t, 64, 64), Tier: entity.TierLow,
	}
	require.Zero(t, vectorizeIcon(a))
	require.Equal(t, "image/png", a.MimeType)
}

func TestPressureFor_Bands(t *testing.T) {
	require.Equal(t, PressureNone, PressureFor(50, 100))
	require.Equal(t, PressureNone, PressureFor(100, 100))
	require.Equal(t, PressureModerate, PressureFor(140, 100))
	require.Equal(t, PressureHigh, PressureFor(200, 100))
	require.Equal(t, PressureExtreme, PressureFor(400, 100))
	require.Equal(t, PressureNone, PressureFor(400, 0))
}

func TestQualityFor_TierAndPressureProportional(t *testing.T) {
	// Quality falls as pressure rises, and higher tiers always keep
	// more quality than lower ones at the same pressure.
	require.Greater(t, qualityFor(entity.TierLow, PressureModerate), qualityFor(entity.TierLow, PressureExtreme))
	require.Greater(t, qualityFor(entity.TierMedium, PressureExtreme), qualityFor(entity.TierLow, PressureExtreme))
	require.Zero(t, qualityFor(entity.TierHigh, PressureModerate))
	require.NotZero(t, qualityFor(entity.TierHigh, PressureExtreme))
	require.Zero(t, qualityFor(entity.TierCritical, PressureExtreme))
}
