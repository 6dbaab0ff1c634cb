package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// directHTTPProxy is a minimal stand-in for the outbound unblocking proxy
// spec.md §6 treats as an external collaborator ("whose interfaces we
// specify but do not design"): it satisfies fetch.Proxy by issuing the
// request directly over a high-throughput client, with no rotation,
// rendering, or anti-bot handling. A real deployment replaces this with a
// client for whatever unblocking service is available; nothing in
// internal/agent depends on this file.
//
// Adapted from internal/app/http.go's newHighThroughputHTTPClient.
type directHTTPProxy struct {
	client    *http.Client
	userAgent string
}

func newDirectHTTPProxy(userAgent string, sslVerify bool) *directHTTPProxy {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !sslVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &directHTTPProxy{
		client:    &http.Client{Transport: transport},
		userAgent: userAgent,
	}
}

func (p *directHTTPProxy) Fetch(ctx context.Context, targetURL string, timeout time.Duration) ([]byte, int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, resp.Header.Get("Content-Type"), fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, resp.Header.Get("Content-Type"), nil
}
