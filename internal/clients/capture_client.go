/**
 * Capture API client.
 *
 * The camera uploader normally inlines the panel photo into the job payload,
 * but large captures are stored behind the capture API and referenced by
 * URL. This client downloads those photos.
 */

package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CaptureClient downloads panel photos referenced by capture jobs.
type CaptureClient struct {
	baseURL    string
	maxBytes   int64
	httpClient *http.Client
}

// NewCaptureClient creates a capture API client. baseURL may be empty when
// jobs always carry absolute URLs.
func NewCaptureClient(baseURL string, maxBytes int64) *CaptureClient {
	return &CaptureClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Download fetches a panel photo. fileURL may be absolute or a path relative
// to the configured capture API base.
func (c *CaptureClient) Download(ctx context.Context, fileURL string) ([]byte, error) {
	if fileURL == "" {
		return nil, fmt.Errorf("file URL is required")
	}

	target := fileURL
	if parsed, err := url.Parse(fileURL); err != nil || !parsed.IsAbs() {
		if c.baseURL == "" {
			return nil, fmt.Errorf("relative file URL %q without capture API base", fileURL)
		}
		target = c.baseURL + "/" + strings.TrimLeft(fileURL, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download of %s returned status %d", target, resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo body: %w", err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("photo at %s exceeds size limit of %d bytes", target, c.maxBytes)
	}

	return data, nil
}
