package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/credit-limiter/internal/audit"
	"github.com/serroba/credit-limiter/internal/credit"
	"github.com/serroba/credit-limiter/internal/ratelimit"
	"go.uber.org/zap"
)

// CreditHandler exposes admission checks and credit acquisition over HTTP.
type CreditHandler struct {
	limiter        ratelimit.Checker
	requester      *credit.Requester
	recorder       *audit.Recorder
	acquireTimeout time.Duration
	logger         *zap.Logger
}

// NewCreditHandler creates a new credit handler. Acquisitions waiting longer
// than acquireTimeout end as not granted; zero leaves them bound only by the
// client connection.
func NewCreditHandler(
	limiter ratelimit.Checker,
	requester *credit.Requester,
	recorder *audit.Recorder,
	acquireTimeout time.Duration,
	logger *zap.Logger,
) *CreditHandler {
	return &CreditHandler{
		limiter:        limiter,
		requester:      requester,
		recorder:       recorder,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

func (h *CreditHandler) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	spec := req.Body.spec()

	remaining, err := h.limiter.CheckAndConsume(ctx, req.Key, spec)
	if err != nil {
		return nil, h.toHTTPError(req.Key, err)
	}

	h.recorder.Record(ctx, audit.NewDecision(audit.ModeCheck, req.Key, spec, remaining >= 0, remaining, 1, time.Now()))

	resp := &CheckResponse{}
	resp.Body.Key = req.Key
	resp.Body.Remaining = remaining
	resp.Body.Granted = remaining >= 0

	return resp, nil
}

func (h *CreditHandler) Acquire(ctx context.Context, req *AcquireRequest) (*AcquireResponse, error) {
	spec := req.Body.spec()

	if req.Body.WaitIntervalMs < 0 {
		return nil, h.toHTTPError(req.Key, fmt.Errorf("%w: wait interval must not be negative, got %d ms",
			ratelimit.ErrInvalidParameters, req.Body.WaitIntervalMs))
	}

	opts := []credit.AcquireOption{
		credit.WithWaitInterval(time.Duration(req.Body.WaitIntervalMs) * time.Millisecond),
	}
	if req.Body.MaxRetries != nil {
		opts = append(opts, credit.WithMaxRetries(*req.Body.MaxRetries))
	}

	acquireCtx, cancel := h.acquireContext(ctx)
	defer cancel()

	outcome, err := h.requester.Request(acquireCtx, req.Key, spec, opts...)
	if err != nil && !h.timedOut(ctx, acquireCtx, err) {
		return nil, h.toHTTPError(req.Key, err)
	}

	h.recorder.Record(ctx, audit.NewDecision(
		audit.ModeAcquire, req.Key, spec, outcome.Granted, outcome.Remaining, outcome.Attempts, time.Now()))

	resp := &AcquireResponse{}
	resp.Body.Key = req.Key
	resp.Body.Granted = outcome.Granted
	resp.Body.Attempts = outcome.Attempts
	resp.Body.Remaining = outcome.Remaining

	return resp, nil
}

func (h *CreditHandler) acquireContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.acquireTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, h.acquireTimeout)
}

// timedOut reports whether err came from the server-side acquire deadline
// rather than the client going away.
func (h *CreditHandler) timedOut(parent, acquireCtx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) &&
		parent.Err() == nil &&
		errors.Is(acquireCtx.Err(), context.DeadlineExceeded)
}

func (h *CreditHandler) toHTTPError(key string, err error) error {
	switch {
	case errors.Is(err, ratelimit.ErrInvalidParameters):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		h.logger.Error("credit store unavailable", zap.String("key", key), zap.Error(err))

		return huma.Error503ServiceUnavailable("credit store unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.NewError(http.StatusRequestTimeout, "request cancelled")
	default:
		h.logger.Error("credit request failed", zap.String("key", key), zap.Error(err))

		return huma.Error500InternalServerError("credit request failed")
	}
}

func (w CreditWindow) spec() ratelimit.WindowSpec {
	return ratelimit.WindowSpec{WindowSeconds: w.WindowSeconds, Limit: w.Limit}
}
