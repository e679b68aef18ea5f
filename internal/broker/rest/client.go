package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kerner1000/riskmanager/internal/broker"
)

// httpClient is the thin JSON-over-HTTPS helper the gateway drives; the
// core's contract is that it assumes a working REST client with session
// cookies already wired in (spec §1) — this is that client.
type httpClient struct {
	base   *url.URL
	cookie string
	client *http.Client
}

func newHTTPClient(cfg Config) (*httpClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("rest gateway: invalid base_url %q: %w", cfg.BaseURL, err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &httpClient{
		base:   base,
		cookie: cfg.SessionCookie,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) (*http.Response, error) {
	return c.doWithHeader(ctx, method, path, query, body, out)
}

func (c *httpClient) doWithHeader(ctx context.Context, method, path string, query url.Values, body any, out any, extraHeader ...string) (*http.Response, error) {
	full := *c.base
	full.Path = joinPath(c.base.Path, path)
	if query != nil {
		full.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, broker.NewError(broker.KindProtocol, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, full.String(), reader)
	if err != nil {
		return nil, broker.NewError(broker.KindTransport, err)
	}
	req.Header.Set("Accept", "*/*")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	for i := 0; i+1 < len(extraHeader); i += 2 {
		req.Header.Set(extraHeader[i], extraHeader[i+1])
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, broker.NewError(broker.KindTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, broker.NewError(broker.KindTransport, err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, broker.NewError(broker.KindProtocol, fmt.Errorf("decode response from %s: %w", path, err))
		}
	}
	return resp, nil
}

func joinPath(base, extra string) string {
	if base == "" {
		return extra
	}
	if base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if extra != "" && extra[0] != '/' {
		extra = "/" + extra
	}
	return base + extra
}
