package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/credit-limiter/internal/audit"
	"go.uber.org/zap"
)

// AuditHandler serves persisted credit decisions.
type AuditHandler struct {
	reader audit.Reader
	now    func() time.Time
	logger *zap.Logger
}

// NewAuditHandler creates a new audit handler over reader.
func NewAuditHandler(reader audit.Reader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{reader: reader, now: time.Now, logger: logger}
}

// DecisionsRequest selects the decisions of one key.
type DecisionsRequest struct {
	Key          string `doc:"The credit key"                        example:"user:42" maxLength:"512" minLength:"1" path:"key"`
	SinceSeconds int64  `default:"3600" doc:"How far back to list decisions" example:"60" minimum:"1" query:"sinceSeconds"`
}

// DecisionsResponse lists recent decisions and the all-time total for a key.
type DecisionsResponse struct {
	Body struct {
		Key       string            `doc:"The credit key"                    example:"user:42" json:"key"`
		Total     int64             `doc:"Decisions ever stored for the key" example:"12"      json:"total"`
		Decisions []*audit.Decision `doc:"Decisions in the requested range, oldest first"     json:"decisions"`
	}
}

func (h *AuditHandler) Decisions(ctx context.Context, req *DecisionsRequest) (*DecisionsResponse, error) {
	total, err := h.reader.CountByKey(ctx, req.Key)
	if err != nil {
		return nil, h.storeError(req.Key, err)
	}

	since := h.now().Add(-time.Duration(req.SinceSeconds) * time.Second)

	decisions, err := h.reader.Since(ctx, req.Key, since)
	if err != nil {
		return nil, h.storeError(req.Key, err)
	}

	resp := &DecisionsResponse{}
	resp.Body.Key = req.Key
	resp.Body.Total = total
	resp.Body.Decisions = decisions

	if resp.Body.Decisions == nil {
		resp.Body.Decisions = []*audit.Decision{}
	}

	return resp, nil
}

func (h *AuditHandler) storeError(key string, err error) error {
	h.logger.Error("audit store query failed", zap.String("key", key), zap.Error(err))

	return huma.Error503ServiceUnavailable("audit store unavailable")
}

// RegisterAuditRoutes registers the audit query routes.
func RegisterAuditRoutes(api huma.API, h *AuditHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/audit/{key}",
		Summary:     "List credit decisions",
		Description: "Returns the decisions recorded for a key within the last sinceSeconds, " +
			"and how many were recorded in total.",
		Tags: []string{"Audit"},
	}, h.Decisions)
}
