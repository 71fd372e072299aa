package imagefetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
)

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNGDATA"))
	}))
	defer srv.Close()

	resp, err := NewFetcher(0).Fetch(context.Background(), srv.URL+"/ipfs/QmCover")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("body = %q", data)
	}
	if resp.ContentLength != 7 || resp.ContentType != "image/png" {
		t.Errorf("ContentLength = %d, ContentType = %q", resp.ContentLength, resp.ContentType)
	}
}

func TestFetcher_MalformedURL(t *testing.T) {
	f := NewFetcher(0)
	for _, u := range []string{"ipfs://QmCover", "ftp://host/file", "://bad", "/relative/path"} {
		if _, err := f.Fetch(context.Background(), u); !errors.Is(err, domain.ErrMalformedURL) {
			t.Errorf("Fetch(%q) error = %v, want ErrMalformedURL", u, err)
		}
	}
}

func TestFetcher_Statuses(t *testing.T) {
	tests := []struct {
		status        int
		wantRetryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusGone, false},
		{http.StatusTooManyRequests, true},
		{http.StatusGatewayTimeout, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewFetcher(0).Fetch(context.Background(), srv.URL)
			if err == nil {
				t.Fatal("expected error")
			}
			if domain.IsRetryable(err) != tt.wantRetryable {
				t.Errorf("IsRetryable = %v, want %v", domain.IsRetryable(err), tt.wantRetryable)
			}
		})
	}
}

func TestFetcher_TruncatedBodyIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("short"))
		w.(http.Flusher).Flush()
		// Hijack and close so the client sees an early EOF.
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	}))
	defer srv.Close()

	resp, err := NewFetcher(0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	if !domain.IsRetryable(err) {
		t.Errorf("ReadAll() error = %v, want retryable", err)
	}
}
