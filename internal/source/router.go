package source

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/assetflow/assetflow/internal/config"
	"github.com/assetflow/assetflow/pkg/errors"
	"github.com/assetflow/assetflow/pkg/types"
)

// Router chooses among configured CDN endpoints and the fallback storage
// tier. It tries the highest-priority healthy endpoint first; endpoints
// past the consecutive-failure threshold are only probed after the healthy
// ones are exhausted, and recover on a successful probe. When every CDN
// attempt fails and failover is enabled, the fallback tier is tried last.
type Router struct {
	endpoints          []*endpointState
	fallback           FallbackTier
	client             types.HTTPClient
	failoverEnabled    bool
	intelligentRouting bool

	requestHeaders func() map[string]string
	metrics        types.MetricsObserver
	logger         *log.Logger
}

// NewRouter builds a router from the CDN configuration. Endpoints are
// filtered by active region and ordered by ascending priority.
func NewRouter(cfg config.CDNConfig, client types.HTTPClient, logger *log.Logger) *Router {
	var endpoints []*endpointState
	if cfg.Enabled {
		endpoints = selectEndpoints(cfg.Endpoints, cfg.ActiveRegions, cfg.FailureThreshold)
	}

	return &Router{
		endpoints:          endpoints,
		client:             client,
		failoverEnabled:    cfg.FailoverEnabled,
		intelligentRouting: cfg.IntelligentRouting,
		logger:             logger,
	}
}

// SetFallback installs the fallback storage tier.
func (r *Router) SetFallback(tier FallbackTier) {
	r.fallback = tier
}

// SetRequestHeaders installs a provider for per-request headers, typically
// the compression negotiator's Accept-Encoding hint.
func (r *Router) SetRequestHeaders(fn func() map[string]string) {
	r.requestHeaders = fn
}

// SetMetrics installs the metrics observer. Every attempt, successful or
// not, is reported with the tier it targeted; successes also report the
// endpoint latency.
func (r *Router) SetMetrics(observer types.MetricsObserver) {
	r.metrics = observer
}

// Fetch retrieves the asset bytes, reporting the tier that served them.
func (r *Router) Fetch(ctx context.Context, assetURL string) (*types.FetchResult, error) {
	var lastErr error

	// First pass: healthy endpoints in priority order, skipping those over
	// their latency threshold when intelligent routing is on.
	var deferred []*endpointState
	for _, ep := range r.endpoints {
		if !ep.healthy() || (r.intelligentRouting && ep.slow()) {
			deferred = append(deferred, ep)
			continue
		}
		result, err := r.attempt(ctx, ep, assetURL)
		if err == nil {
			return result, nil
		}
		if errors.CodeOf(err) == errors.ErrCodeOperationCanceled {
			return nil, err
		}
		lastErr = err
	}

	// Second pass: probe unhealthy or slow endpoints. A success here
	// restores the endpoint.
	for _, ep := range deferred {
		result, err := r.attempt(ctx, ep, assetURL)
		if err == nil {
			return result, nil
		}
		if errors.CodeOf(err) == errors.ErrCodeOperationCanceled {
			return nil, err
		}
		lastErr = err
	}

	if r.failoverEnabled && r.fallback != nil {
		result, err := r.fetchFallback(ctx, assetURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.NewError(errors.ErrCodeMissingEndpoints, "no sources available")
	}
	failure := errors.NewError(errors.ErrCodeAllSourcesFailed, "all sources failed").
		WithURL(assetURL).WithCause(lastErr)
	failure.Retryable = errors.IsRetryable(lastErr)
	return nil, failure
}

// attempt fetches from one endpoint and updates its health state.
func (r *Router) attempt(ctx context.Context, ep *endpointState, assetURL string) (*types.FetchResult, error) {
	target := endpointURL(ep.cfg.BaseURL, assetURL)

	var headers map[string]string
	if r.requestHeaders != nil {
		headers = r.requestHeaders()
	}

	resp, err := r.client.Get(ctx, target, headers)
	if err != nil {
		if errors.CodeOf(err) != errors.ErrCodeOperationCanceled {
			ep.onFailure()
			if r.metrics != nil {
				r.metrics.RecordAttempt(types.SourceCDN, false)
			}
			r.logger.Debug("endpoint fetch failed",
				"endpoint", ep.cfg.Name, "url", assetURL, "err", err)
		}
		var assetErr *errors.AssetError
		if stderrors.As(err, &assetErr) {
			assetErr.Endpoint = ep.cfg.Name
		}
		return nil, err
	}

	ep.onSuccess(resp.Latency)
	if r.metrics != nil {
		r.metrics.RecordAttempt(types.SourceCDN, true)
		r.metrics.RecordLatency(ep.cfg.Name, resp.Latency)
	}

	return &types.FetchResult{
		Data:            resp.Body,
		Source:          types.SourceCDN,
		Endpoint:        ep.cfg.Name,
		ContentEncoding: resp.ContentEncoding,
		ReceivedBytes:   resp.ReceivedBytes,
		Latency:         resp.Latency,
	}, nil
}

func (r *Router) fetchFallback(ctx context.Context, assetURL string) (*types.FetchResult, error) {
	data, err := r.fallback.Fetch(ctx, assetURL)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordAttempt(types.SourceFallback, false)
		}
		r.logger.Debug("fallback fetch failed", "url", assetURL, "err", err)
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RecordAttempt(types.SourceFallback, true)
	}

	return &types.FetchResult{
		Data:          data,
		Source:        types.SourceFallback,
		Endpoint:      r.fallback.Name(),
		ReceivedBytes: int64(len(data)),
	}, nil
}

// HealthStatus returns a snapshot of every endpoint's health.
func (r *Router) HealthStatus() []types.EndpointHealth {
	status := make([]types.EndpointHealth, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		status = append(status, ep.snapshot())
	}
	return status
}

// endpointURL maps the canonical asset URL onto an endpoint: absolute URLs
// contribute their path and query, relative references are joined as-is.
func endpointURL(baseURL, assetURL string) string {
	suffix := assetURL
	if u, err := url.Parse(assetURL); err == nil && u.Scheme != "" {
		suffix = u.Path
		if u.RawQuery != "" {
			suffix += "?" + u.RawQuery
		}
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
