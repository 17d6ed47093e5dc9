package types

// Envelope is the body of every successful response: {"data": ...}.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is what clients see when a request fails. RequestID echoes the
// X-Request-Id header so support can find the matching log entry.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
