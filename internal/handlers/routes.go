package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers the credit routes.
func RegisterRoutes(api huma.API, h *CreditHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "check-credit",
		Method:      http.MethodPost,
		Path:        "/credits/{key}/check",
		Summary:     "Check and consume a credit",
		Description: "Atomically prunes the key's window, counts it and consumes a credit when one is available. " +
			"Remaining is negative when the request was denied.",
		Tags: []string{"Credits"},
	}, h.Check)

	huma.Register(api, huma.Operation{
		OperationID: "acquire-credit",
		Method:      http.MethodPost,
		Path:        "/credits/{key}/acquire",
		Summary:     "Acquire a credit",
		Description: "Checks once, or with waitIntervalMs set keeps checking until a credit is granted " +
			"or maxRetries is exhausted.",
		Tags: []string{"Credits"},
	}, h.Acquire)
}
