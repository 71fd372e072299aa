package resolver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
)

// DefaultGateway is the public IPFS HTTP gateway
const DefaultGateway = "https://ipfs.io/ipfs/"

// ResolveImageURL turns an on-chain image location into an absolute HTTP(S) URL.
//
//	ipfs://<cid>[/path]       -> <gateway><cid>[/path]
//	ipfs://ipfs/<cid>[/path]  -> <gateway><cid>[/path]
//	Qm... / bafy...           -> <gateway><cid>
//	http(s)://...             -> unchanged
//
// Anything else wraps domain.ErrMalformedURL.
func ResolveImageURL(src, gateway string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", fmt.Errorf("%w: empty image source", domain.ErrMalformedURL)
	}
	if gateway == "" {
		gateway = DefaultGateway
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}

	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "ipfs://"):
		path := src[len("ipfs://"):]
		if strings.HasPrefix(strings.ToLower(path), "ipfs/") {
			path = path[len("ipfs/"):]
		}
		path = strings.TrimLeft(path, "/")
		if path == "" {
			return "", fmt.Errorf("%w: %q has no content id", domain.ErrMalformedURL, src)
		}
		return gateway + path, nil

	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(src)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: %q", domain.ErrMalformedURL, src)
		}
		return u.String(), nil

	case isBareCID(src):
		return gateway + src, nil
	}

	return "", fmt.Errorf("%w: unsupported image source %q", domain.ErrMalformedURL, src)
}

// isBareCID recognises CIDv0 (Qm + 44 base58 chars) and base32 CIDv1 (b...) strings.
func isBareCID(s string) bool {
	cid := s
	if i := strings.IndexByte(s, '/'); i >= 0 {
		cid = s[:i]
	}
	switch {
	case len(cid) == 46 && strings.HasPrefix(cid, "Qm"):
		return isBase58(cid)
	case len(cid) > 50 && strings.HasPrefix(cid, "baf"):
		return isBase32Lower(cid)
	}
	return false
}

func isBase58(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz", r) {
			return false
		}
	}
	return true
}

func isBase32Lower(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && !(r >= '2' && r <= '7') {
			return false
		}
	}
	return true
}
