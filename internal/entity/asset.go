package entity

// ImportanceTier classifies how visually important an embedded asset
// is. The classifier assigns it once; the optimizer never downgrades
// a tier, it only rewrites or removes asset data according to it.
type ImportanceTier string

const (
	TierCritical ImportanceTier = "critical"
	TierHigh     ImportanceTier = "high"
	TierMedium   ImportanceTier = "medium"
	TierLow      ImportanceTier = "low"
	TierMinimal  ImportanceTier = "minimal"
)

// AssetRecord is one embedded binary asset (raster image or vector)
// in a capture's asset registry.
type AssetRecord struct {
	ID       string         `json:"id"`
	URL      string         `json:"url,omitempty"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	MimeType string         `json:"mime_type"`
	// Data is the base64-encoded asset bytes. Empty for
	// reference-only records where only the URL was captured.
	Data string         `json:"data,omitempty"`
	Tier ImportanceTier `json:"tier,omitempty"`
}

// Embedded reports whether the record carries inline bytes. Records
// without data are skipped by the optimizer.
func (a *AssetRecord) Embedded() bool {
	return a.Data != ""
}

// IsVector reports whether the asset is already in vector form.
func (a *AssetRecord) IsVector() bool {
	return a.MimeType == "image/svg+xml"
}
