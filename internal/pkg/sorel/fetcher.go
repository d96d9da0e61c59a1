package sorel

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// Response is the part of an HTTP response the client needs.
type Response struct {
	StatusCode int
	Cookies    []*http.Cookie
	Body       []byte
}

// Fetcher performs a GET request, attaching the given cookies.
type Fetcher interface {
	Get(ctx context.Context, url string, cookies []*http.Cookie) (*Response, error)
}

type httpFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a Fetcher that skips certificate verification, the
// portal hosts do not present a verifiable certificate.
func NewHTTPFetcher(timeout time.Duration) *httpFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return &httpFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

func (f *httpFetcher) Get(ctx context.Context, url string, cookies []*http.Cookie) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	out := &Response{
		StatusCode: res.StatusCode,
		Cookies:    res.Cookies(),
	}
	if res.StatusCode != http.StatusOK {
		return out, nil
	}

	out.Body, err = io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return out, nil
}
