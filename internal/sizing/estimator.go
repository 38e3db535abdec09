// Package sizing approximates payload sizes and assigns assets their
// visual-importance tiers. Both are cheap structural passes used to
// decide how much optimization work a capture needs before transfer.
package sizing

import "github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"

// perAssetOverhead covers the JSON field names, hash key and quoting
// around one asset record in the serialized form.
const perAssetOverhead = 256

// payloadOverhead covers the envelope fields outside the tree, assets
// and screenshot.
const payloadOverhead = 1024

// EstimateBytes approximates the serialized size of a payload without
// serializing it. Asset data and the screenshot dominate real
// payloads by orders of magnitude, so summing their lengths plus the
// structural tree plus fixed overheads lands within a few percent of
// the true size.
func EstimateBytes(p *entity.CapturedPayload) int64 {
	size := int64(len(p.Capture)) + int64(len(p.Screenshot)) + payloadOverhead
	for _, a := range p.Assets {
		size += int64(len(a.Data)) + int64(len(a.URL)) + perAssetOverhead
	}
	return size
}

// EstimateMB is EstimateBytes in megabytes for reports and logs.
func EstimateMB(p *entity.CapturedPayload) float64 {
	return float64(EstimateBytes(p)) / (1 << 20)
}
