package handlers

// CreditWindow is the window every credit request is evaluated against.
type CreditWindow struct {
	WindowSeconds int64 `doc:"Window length in seconds"        example:"1" json:"windowSeconds"`
	Limit         int64 `doc:"Credits available per window" example:"5" json:"limit"`
}

// CheckRequest is the request for a single admission check.
type CheckRequest struct {
	Key  string `doc:"The credit key" example:"user:42" maxLength:"512" minLength:"1" path:"key"`
	Body CreditWindow
}

// CheckResponse is the result of a single admission check.
type CheckResponse struct {
	Body struct {
		Key       string `doc:"The credit key"                                 example:"user:42" json:"key"`
		Remaining int64  `doc:"Credits left after this request, negative when denied" example:"4"       json:"remaining"`
		Granted   bool   `doc:"Whether a credit was consumed"                  example:"true"    json:"granted"`
	}
}

// AcquireRequest is the request for acquiring a credit, optionally waiting for one.
type AcquireRequest struct {
	Key  string `doc:"The credit key" example:"user:42" maxLength:"512" minLength:"1" path:"key"`
	Body struct {
		CreditWindow
		WaitIntervalMs int64 `doc:"Milliseconds to wait between attempts, at least 0; 0 checks once" example:"100" json:"waitIntervalMs,omitempty"`
		MaxRetries     *int  `doc:"Retries after the first attempt; omit for no cap"    example:"3"   json:"maxRetries,omitempty"`
	}
}

// AcquireResponse is the result of an acquisition.
type AcquireResponse struct {
	Body struct {
		Key       string `doc:"The credit key"                  example:"user:42" json:"key"`
		Granted   bool   `doc:"Whether a credit was granted"    example:"true"    json:"granted"`
		Attempts  int    `doc:"Admission checks performed"      example:"1"       json:"attempts"`
		Remaining int64  `doc:"Result of the last admission check" example:"0"       json:"remaining"`
	}
}
