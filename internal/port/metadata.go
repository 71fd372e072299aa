package port

import "context"

// PolicyAsset is one entry of a policy's asset listing.
type PolicyAsset struct {
	AssetID  string
	Quantity string
}

// AssetFile is one entry of an asset's on-chain "files" metadata.
// Src is already joined when the chain stores it as chunks.
type AssetFile struct {
	Name      string
	MediaType string
	Src       string
}

// AssetDetails is the subset of an asset's metadata the resolver needs.
type AssetDetails struct {
	AssetID  string
	PolicyID string
	Name     string

	// Image is the on-chain "image" field, joined if chunked.
	Image string

	// MediaType is the on-chain top-level "mediaType" field.
	MediaType string

	Files []AssetFile

	// HasOnchainMetadata is false when the service returned no on-chain metadata.
	HasOnchainMetadata bool
}

// MetadataClient defines the operations needed from the external metadata service.
//
// Implementations return errors wrapping domain.ErrNotFound when the service
// reports a missing resource, *domain.RetryableError for transient failures,
// and *domain.HTTPStatusError for other non-success statuses.
type MetadataClient interface {
	// ListPolicyAssets returns one page (1-based) of the assets minted under policyID,
	// in the service's ascending order.
	ListPolicyAssets(ctx context.Context, policyID string, page, count int) ([]PolicyAsset, error)

	// GetAsset returns the metadata of a single asset.
	GetAsset(ctx context.Context, assetID string) (*AssetDetails, error)
}

// CollectionCatalog answers whether a collection is known to the catalog.
type CollectionCatalog interface {
	HasCollection(ctx context.Context, collectionID string) (bool, error)
}
