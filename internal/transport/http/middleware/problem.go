package middleware

// ProblemDetails represents an RFC 9457 problem response used for rate limit
// rejections.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Instance   string `json:"instance,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}
