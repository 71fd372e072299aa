package domain

import "strings"

// MaxAssetsPerRun caps how many assets a single run resolves and downloads.
const MaxAssetsPerRun = 10

// AssetRecord describes one asset of a collection and where its cover image lives.
// Records are produced by the resolver and are read-only afterwards.
type AssetRecord struct {
	// AssetID is the asset unit (policy ID + hex asset name), unique within a collection.
	AssetID string

	// Name is the human readable on-chain name, if any.
	Name string

	// ImageURL is the resolved absolute HTTP(S) URL of the image.
	ImageURL string

	// MediaType is the declared media type of the image, e.g. "image/png".
	MediaType string

	// SequenceIndex is the 0-based position in resolution order.
	SequenceIndex int
}

var mediaTypeExtensions = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
}

// Extension returns the file extension for the asset's media type.
// Unknown or missing media types fall back to "png".
func (a AssetRecord) Extension() string {
	mt := strings.ToLower(strings.TrimSpace(a.MediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if ext, ok := mediaTypeExtensions[mt]; ok {
		return ext
	}
	return "png"
}

// FileName returns the deterministic file name for the asset's image.
func (a AssetRecord) FileName() string {
	return a.AssetID + "." + a.Extension()
}
