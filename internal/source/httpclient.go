package source

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/assetflow/assetflow/pkg/errors"
	"github.com/assetflow/assetflow/pkg/types"
)

// Client is the default HTTPClient. It manages Accept-Encoding itself and
// decodes gzip and zstd response bodies, so the router always sees decoded
// payload bytes alongside the on-the-wire byte count.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// We negotiate and decode compression ourselves to observe the ratio
	transport.DisableCompression = true

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Get performs a single GET, returning the decoded body and transport
// metadata. Non-2xx statuses are returned as HTTP_ERROR; connection-level
// failures as NETWORK_ERROR or TIMEOUT.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*types.FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetworkError, "invalid request").
			WithURL(url).WithCause(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errors.NewHTTPError(resp.StatusCode,
			fmt.Sprintf("unexpected status %d", resp.StatusCode)).WithURL(url)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(url, err)
	}

	encoding := resp.Header.Get("Content-Encoding")
	body, err := decode(encoding, raw)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetworkError, "failed to decode response body").
			WithURL(url).WithCause(err)
	}

	return &types.FetchResponse{
		StatusCode:      resp.StatusCode,
		Body:            body,
		Header:          resp.Header,
		ContentEncoding: encoding,
		ReceivedBytes:   int64(len(raw)),
		Latency:         latency,
	}, nil
}

// decode decompresses raw according to the content encoding.
func decode(encoding string, raw []byte) ([]byte, error) {
	switch encoding {
	case "", "identity":
		return raw, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr.IOReadCloser())
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// classifyTransportError maps connection-level failures to the error
// taxonomy: timeouts and context deadlines become TIMEOUT, cancellations
// OPERATION_CANCELED, everything else NETWORK_ERROR.
func classifyTransportError(url string, err error) *errors.AssetError {
	if stderrors.Is(err, context.Canceled) {
		return errors.NewError(errors.ErrCodeOperationCanceled, "fetch canceled").
			WithURL(url).WithCause(err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewError(errors.ErrCodeTimeout, "fetch timed out").
			WithURL(url).WithCause(err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewError(errors.ErrCodeTimeout, "fetch timed out").
			WithURL(url).WithCause(err)
	}
	return errors.NewError(errors.ErrCodeNetworkError, "connection failed").
		WithURL(url).WithCause(err)
}
