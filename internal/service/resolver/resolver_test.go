package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
	"github.com/vertextoedge/book-cover-fetcher/internal/domain/vo"
	"github.com/vertextoedge/book-cover-fetcher/internal/port"
	"github.com/vertextoedge/book-cover-fetcher/internal/service/backoff"
)

const testPolicy = "d5e6bf0500378d4f0da4e8dde6becec7621cd8cbf5cbb9b87013d4cc"

// mockMetadataClient serves a fixed asset list
type mockMetadataClient struct {
	mu sync.Mutex

	assets  []string
	details map[string]*port.AssetDetails

	listErrs   []error // returned by successive ListPolicyAssets calls
	assetErrs  map[string][]error
	listCalls  int
	assetCalls map[string]int
}

func newMockClient(n int) *mockMetadataClient {
	m := &mockMetadataClient{
		details:    make(map[string]*port.AssetDetails),
		assetErrs:  make(map[string][]error),
		assetCalls: make(map[string]int),
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s%04x", testPolicy, i)
		m.assets = append(m.assets, id)
		m.details[id] = &port.AssetDetails{
			AssetID:            id,
			PolicyID:           testPolicy,
			Name:               fmt.Sprintf("Book %d", i),
			HasOnchainMetadata: true,
			Files: []port.AssetFile{
				{Name: "cover", MediaType: "image/png", Src: fmt.Sprintf("ipfs://QmCover%d", i)},
			},
		}
	}
	return m
}

func (m *mockMetadataClient) ListPolicyAssets(ctx context.Context, policyID string, page, count int) ([]port.PolicyAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if len(m.listErrs) > 0 {
		err := m.listErrs[0]
		m.listErrs = m.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	start := (page - 1) * count
	if start >= len(m.assets) {
		return nil, nil
	}
	end := start + count
	if end > len(m.assets) {
		end = len(m.assets)
	}
	var out []port.PolicyAsset
	for _, id := range m.assets[start:end] {
		out = append(out, port.PolicyAsset{AssetID: id, Quantity: "1"})
	}
	return out, nil
}

func (m *mockMetadataClient) GetAsset(ctx context.Context, assetID string) (*port.AssetDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assetCalls[assetID]++
	if errs := m.assetErrs[assetID]; len(errs) > 0 {
		m.assetErrs[assetID] = errs[1:]
		if errs[0] != nil {
			return nil, errs[0]
		}
	}
	d, ok := m.details[assetID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

type mockCatalog struct {
	listed bool
	err    error
	calls  int
}

func (m *mockCatalog) HasCollection(ctx context.Context, collectionID string) (bool, error) {
	m.calls++
	return m.listed, m.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PageSize = 4
	cfg.Retry = backoff.Policy{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond, Clock: clock.WallClock}
	return cfg
}

func newTestService(client port.MetadataClient, catalog port.CollectionCatalog) *Service {
	return New(client, catalog, testConfig(), nil, zap.NewNop())
}

func transient() error {
	return domain.NewRetryableError(&domain.HTTPStatusError{StatusCode: 503, Status: "503 Service Unavailable"}, 0)
}

func TestResolve_Order(t *testing.T) {
	client := newMockClient(6)
	s := newTestService(client, nil)

	records, err := s.Resolve(context.Background(), vo.MustCollectionID(testPolicy))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("len = %d, want 6", len(records))
	}
	for i, r := range records {
		if r.AssetID != client.assets[i] || r.SequenceIndex != i {
			t.Errorf("record %d = %s/%d, want %s/%d", i, r.AssetID, r.SequenceIndex, client.assets[i], i)
		}
		if want := fmt.Sprintf("https://ipfs.io/ipfs/QmCover%d", i); r.ImageURL != want {
			t.Errorf("record %d ImageURL = %s, want %s", i, r.ImageURL, want)
		}
		if r.MediaType != "image/png" || r.Name == "" {
			t.Errorf("record %d = %+v", i, r)
		}
	}
}

func TestResolve_CapsAtTen(t *testing.T) {
	client := newMockClient(25)
	s := newTestService(client, nil)

	records, err := s.Resolve(context.Background(), vo.MustCollectionID(testPolicy))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(records) != domain.MaxAssetsPerRun {
		t.Fatalf("len = %d, want %d", len(records), domain.MaxAssetsPerRun)
	}
	for i, r := range records {
		if r.AssetID != client.assets[i] {
			t.Errorf("record %d = %s, want first ten in service order", i, r.AssetID)
		}
	}
	// Pages of 4: 4 + 4 + 2 of the third page.
	if client.listCalls != 3 {
		t.Errorf("listCalls = %d, want 3", client.listCalls)
	}
	if len(client.assetCalls) != 10 {
		t.Errorf("details fetched for %d assets, want 10", len(client.assetCalls))
	}
}

func TestResolve_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		client *mockMetadataClient
	}{
		{name: "empty listing", client: newMockClient(0)},
		{name: "service 404", client: func() *mockMetadataClient {
			c := newMockClient(3)
			c.listErrs = []error{fmt.Errorf("%w: 404", domain.ErrNotFound)}
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestService(tt.client, nil).Resolve(context.Background(), vo.MustCollectionID(testPolicy))
			if !domain.IsResolutionKind(err, domain.ResolutionNotFound) {
				t.Errorf("error = %v, want not_found", err)
			}
			if tt.client.listCalls != 1 {
				t.Errorf("listCalls = %d, want 1 (not found is not retried)", tt.client.listCalls)
			}
		})
	}
}

func TestResolve_Unauthorized(t *testing.T) {
	client := newMockClient(3)
	client.listErrs = []error{&domain.HTTPStatusError{StatusCode: 403, Status: "403 Forbidden"}}

	_, err := newTestService(client, nil).Resolve(context.Background(), vo.MustCollectionID(testPolicy))
	if !domain.IsResolutionKind(err, domain.ResolutionUnauthorized) {
		t.Errorf("error = %v, want unauthorized", err)
	}
}

func TestResolve_TransientRetried(t *testing.T) {
	client := newMockClient(2)
	client.listErrs = []error{transient(), nil}
	client.assetErrs[client.assets[1]] = []error{transient(), transient()}

	records, err := newTestService(client, nil).Resolve(context.Background(), vo.MustCollectionID(testPolicy))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("len = %d, want 2", len(records))
	}
	if client.listCalls != 2 {
		t.Errorf("listCalls = %d, want 2", client.listCalls)
	}
	if client.assetCalls[client.assets[1]] != 3 {
		t.Errorf("asset calls = %d, want 3", client.assetCalls[client.assets[1]])
	}
}

func TestResolve_ServiceUnavailableAfterRetries(t *testing.T) {
	client := newMockClient(2)
	client.listErrs = []error{transient(), transient(), transient(), transient()}

	_, err := newTestService(client, nil).Resolve(context.Background(), vo.MustCollectionID(testPolicy))
	if !domain.IsResolutionKind(err, domain.ResolutionServiceUnavailable) {
		t.Errorf("error = %v, want service_unavailable", err)
	}
	if client.listCalls != 3 {
		t.Errorf("listCalls = %d, want 3 (max attempts)", client.listCalls)
	}
}

func TestResolve_MalformedAsset(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*port.AssetDetails)
	}{
		{name: "no metadata", mutate: func(d *port.AssetDetails) { d.HasOnchainMetadata = false }},
		{name: "no image", mutate: func(d *port.AssetDetails) { d.Files = nil }},
		{name: "unsupported scheme", mutate: func(d *port.AssetDetails) { d.Files[0].Src = "ar://arweave-tx" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient(3)
			bad := client.assets[1]
			tt.mutate(client.details[bad])

			_, err := newTestService(client, nil).Resolve(context.Background(), vo.MustCollectionID(testPolicy))
			var rerr *domain.ResolutionError
			if !errors.As(err, &rerr) || rerr.Kind != domain.ResolutionMalformedResponse {
				t.Fatalf("error = %v, want malformed_response", err)
			}
			if rerr.AssetID != bad {
				t.Errorf("AssetID = %q, want %q", rerr.AssetID, bad)
			}
		})
	}
}

func TestResolve_ImageFallbacks(t *testing.T) {
	client := newMockClient(2)
	first := client.details[client.assets[0]]
	first.Files = []port.AssetFile{
		{Name: "book", MediaType: "application/epub+zip", Src: "ipfs://QmBook"},
		{Name: "cover", MediaType: "image/jpeg", Src: "ipfs://ipfs/QmJpeg"},
	}
	second := client.details[client.assets[1]]
	second.Files = nil
	second.Image = "https://example.com/cover.webp"
	second.MediaType = "image/webp"

	records, err := newTestService(client, nil).Resolve(context.Background(), vo.MustCollectionID(testPolicy))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if records[0].ImageURL != "https://ipfs.io/ipfs/QmJpeg" || records[0].MediaType != "image/jpeg" {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].ImageURL != "https://example.com/cover.webp" || records[1].FileName() != client.assets[1]+".webp" {
		t.Errorf("record 1 = %+v", records[1])
	}
}

func TestResolve_CatalogVerification(t *testing.T) {
	t.Run("not listed", func(t *testing.T) {
		client := newMockClient(3)
		catalog := &mockCatalog{listed: false}

		_, err := newTestService(client, catalog).Resolve(context.Background(), vo.MustCollectionID(testPolicy))
		if !domain.IsResolutionKind(err, domain.ResolutionNotFound) {
			t.Errorf("error = %v, want not_found", err)
		}
		if client.listCalls != 0 {
			t.Errorf("listCalls = %d, want 0", client.listCalls)
		}
	})

	t.Run("listed", func(t *testing.T) {
		catalog := &mockCatalog{listed: true}
		if _, err := newTestService(newMockClient(1), catalog).Resolve(context.Background(), vo.MustCollectionID(testPolicy)); err != nil {
			t.Errorf("Resolve() error = %v", err)
		}
		if catalog.calls != 1 {
			t.Errorf("catalog calls = %d, want 1", catalog.calls)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		catalog := &mockCatalog{listed: false}
		cfg := testConfig()
		cfg.VerifyCollection = false
		s := New(newMockClient(1), catalog, cfg, nil, zap.NewNop())
		if _, err := s.Resolve(context.Background(), vo.MustCollectionID(testPolicy)); err != nil {
			t.Errorf("Resolve() error = %v", err)
		}
		if catalog.calls != 0 {
			t.Errorf("catalog consulted while disabled")
		}
	})
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newMockClient(3)
	client.listErrs = []error{transient(), transient()}

	_, err := newTestService(client, nil).Resolve(ctx, vo.MustCollectionID(testPolicy))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestResolveImageURL(t *testing.T) {
	const cidV0 = "QmWBaeu6y1zEcKbsEqCuhuDHPL3W8pZouCPdafMCRCSUWk"
	const cidV1 = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

	tests := []struct {
		src     string
		want    string
		wantErr bool
	}{
		{src: "ipfs://" + cidV0, want: "https://ipfs.io/ipfs/" + cidV0},
		{src: "ipfs://ipfs/" + cidV0, want: "https://ipfs.io/ipfs/" + cidV0},
		{src: "IPFS://" + cidV0 + "/cover.png", want: "https://ipfs.io/ipfs/" + cidV0 + "/cover.png"},
		{src: cidV0, want: "https://ipfs.io/ipfs/" + cidV0},
		{src: cidV1, want: "https://ipfs.io/ipfs/" + cidV1},
		{src: "https://arweave.net/abc", want: "https://arweave.net/abc"},
		{src: "  ipfs://" + cidV0 + "  ", want: "https://ipfs.io/ipfs/" + cidV0},
		{src: "", wantErr: true},
		{src: "ipfs://", wantErr: true},
		{src: "ar://tx", wantErr: true},
		{src: "data:image/png;base64,AAAA", wantErr: true},
		{src: "https://", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ResolveImageURL(tt.src, "https://ipfs.io/ipfs/")
		if tt.wantErr {
			if !errors.Is(err, domain.ErrMalformedURL) {
				t.Errorf("ResolveImageURL(%q) error = %v, want ErrMalformedURL", tt.src, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ResolveImageURL(%q) = (%q, %v), want %q", tt.src, got, err, tt.want)
		}
	}

	if got, _ := ResolveImageURL("ipfs://"+cidV0, "https://gw.example.com/ipfs"); got != "https://gw.example.com/ipfs/"+cidV0 {
		t.Errorf("custom gateway = %q", got)
	}
}

func TestResolve_DuplicateListingEntries(t *testing.T) {
	client := newMockClient(3)
	a := client.assets
	client.assets = []string{a[0], a[1], a[0], a[2], a[1]}

	records, err := newTestService(client, nil).Resolve(context.Background(), vo.MustCollectionID(testPolicy))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	for i, want := range a {
		if records[i].AssetID != want || records[i].SequenceIndex != i {
			t.Errorf("record %d = %s/%d, want %s/%d", i, records[i].AssetID, records[i].SequenceIndex, want, i)
		}
	}
}

func TestResolve_ZeroIDMakesNoCalls(t *testing.T) {
	client := newMockClient(3)
	catalog := &mockCatalog{listed: true}

	_, err := newTestService(client, catalog).Resolve(context.Background(), vo.CollectionID{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	if client.listCalls != 0 || catalog.calls != 0 {
		t.Errorf("calls made for an invalid id: list=%d catalog=%d", client.listCalls, catalog.calls)
	}
}
