package optimizer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/entity"
)

// vectorizeMaxDim is the largest edge an icon may have to be eligible
// for flat-SVG replacement.
const vectorizeMaxDim = 128

// recompress decodes an asset's raster data and re-encodes it as JPEG
// at the given quality, keeping the smaller of the two encodings. It
// returns the number of base64 text bytes freed.
func recompress(a *entity.AssetRecord, quality int) (int64, error) {
	if a.IsVector() {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return 0, fmt.Errorf("decoding asset %s data: %w", a.ID, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("decoding asset %s image: %w", a.ID, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return 0, fmt.Errorf("re-encoding asset %s: %w", a.ID, err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	freed := int64(len(a.Data)) - int64(len(encoded))
	if freed <= 0 {
		// Already tighter than our re-encode; keep the original.
		return 0, nil
	}
	a.Data = encoded
	a.MimeType = "image/jpeg"
	return freed, nil
}

// vectorizeIcon replaces a small raster icon with a flat SVG of its
// average color when the SVG encoding is smaller. Returns base64 text
// bytes freed, zero when not profitable or not applicable.
func vectorizeIcon(a *entity.AssetRecord) int64 {
	if a.IsVector() || !a.Embedded() {
		return 0
	}
	if a.Width > vectorizeMaxDim || a.Height > vectorizeMaxDim {
		return 0
	}
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return 0
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return 0
	}

	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="100%%" height="100%%" fill="%s"/></svg>`,
		a.Width, a.Height, averageColorHex(img))
	encoded := base64.StdEncoding.EncodeToString([]byte(svg))
	freed := int64(len(a.Data)) - int64(len(encoded))
	if freed <= 0 {
		return 0
	}
	a.Data = encoded
	a.MimeType = "image/svg+xml"
	return freed
}

// sampleStride bounds the pixels visited when averaging; icons are
// small but the cap keeps the cost flat regardless of input.
const sampleStride = 4

// averageColorHex computes the mean RGB of an image as a #rrggbb hex
// string, sampling on a fixed stride.
func averageColorHex(img image.Image) string {
	bounds := img.Bounds()
	var r, g, b, n uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += sampleStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += sampleStride {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += uint64(pr >> 8)
			g += uint64(pg >> 8)
			b += uint64(pb >> 8)
			n++
		}
	}
	if n == 0 {
		return "#000000"
	}
	return fmt.Sprintf("#%02x%02x%02x", uint8(r/n), uint8(g/n), uint8(b/n))
}
