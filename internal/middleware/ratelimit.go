package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// MetadataKey is the operation metadata key holding an EndpointConfig.
const MetadataKey = "rateLimit"

// keyPrefix separates API guard windows from caller credit keys in the shared store.
const keyPrefix = "api:"

// EndpointConfig overrides the API guard for a single operation.
type EndpointConfig struct {
	Disabled bool
	Window   *ratelimit.WindowSpec
}

// RateLimiter returns a Huma middleware that guards the API per client
// (IP and User-Agent) with a sliding window. Operations may override the
// window or opt out through EndpointConfig metadata.
func RateLimiter(
	api huma.API,
	checker ratelimit.Checker,
	spec ratelimit.WindowSpec,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		window := spec
		path := operationPath(ctx)

		if cfg := endpointConfig(ctx); cfg != nil {
			if cfg.Disabled {
				next(ctx)

				return
			}

			if cfg.Window != nil {
				window = *cfg.Window
			}
		}

		key := keyPrefix + path + ":" + clientKey(ctx)

		remaining, err := checker.CheckAndConsume(ctx.Context(), key, window)
		if err != nil {
			logger.Error("api guard check failed", zap.String("path", path), zap.Error(err))

			status := http.StatusInternalServerError
			if errors.Is(err, ratelimit.ErrStoreUnavailable) {
				status = http.StatusServiceUnavailable
			}

			_ = huma.WriteErr(api, ctx, status, http.StatusText(status))

			return
		}

		ctx.SetHeader("X-RateLimit-Limit", strconv.FormatInt(window.Limit, 10))
		ctx.SetHeader("X-RateLimit-Remaining", strconv.FormatInt(max(remaining, 0), 10))

		if remaining < 0 {
			logger.Warn("api guard rejected request",
				zap.String("path", path),
				zap.String("method", ctx.Method()),
				zap.String("client_ip", clientIP(ctx)),
			)

			ctx.SetHeader("Retry-After", strconv.FormatInt(window.WindowSeconds, 10))
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "rate limit exceeded")

			return
		}

		next(ctx)
	}
}

func endpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	switch cfg := op.Metadata[MetadataKey].(type) {
	case EndpointConfig:
		return &cfg
	case *EndpointConfig:
		return cfg
	default:
		return nil
	}
}

// operationPath returns the route template, so every request on a route shares one window per client.
func operationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}

// clientKey generates a unique key for rate limiting based on IP and User-Agent.
func clientKey(ctx huma.Context) string {
	ip := clientIP(ctx)
	ua := ctx.Header("User-Agent")

	hash := sha256.Sum256([]byte(ip + "|" + ua))

	return hex.EncodeToString(hash[:])
}

// clientIP extracts the client IP from the request, considering proxies.
func clientIP(ctx huma.Context) string {
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()
	if addr == "" {
		addr = ctx.Host()
	}

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}
