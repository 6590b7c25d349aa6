package insight

import "time"

// ErrorCode classifies a failed resolution.
type ErrorCode string

const (
	// CodeNoData indicates the computation had no input to work with.
	CodeNoData ErrorCode = "no_data"
	// CodeSubjectNotFound indicates the referenced plant does not exist.
	CodeSubjectNotFound ErrorCode = "subject_not_found"
	// CodeUnsupportedKind indicates no computation is registered for the kind.
	CodeUnsupportedKind ErrorCode = "unsupported_kind"
	// CodeComputationError indicates the computation failed unexpectedly.
	CodeComputationError ErrorCode = "computation_error"
)

// ResponseError carries a failure classification and a human-readable message.
type ResponseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is the envelope every resolution returns. Resolve never panics or
// propagates an error to its caller: failures arrive here with Success false,
// and callers render a fallback state rather than treating them as fatal.
type Response struct {
	Success           bool           `json:"success"`
	Data              any            `json:"data,omitempty"`
	Error             *ResponseError `json:"error,omitempty"`
	Cached            bool           `json:"cached"`
	ComputationTimeMs float64        `json:"computationTimeMs"`
	GeneratedAt       time.Time      `json:"generatedAt"`
}

func failure(code ErrorCode, message string) Response {
	return Response{
		Success:     false,
		Error:       &ResponseError{Code: code, Message: message},
		GeneratedAt: time.Now().UTC(),
	}
}
