package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// safeDetailsPrefix tags the JSON payload WithReportableDetails attaches,
// so it can be told apart from other safe detail strings on the chain.
const safeDetailsPrefix = "__json__:"

// ErrorResponse is the serialized form of a billing error: a caller-facing
// message, the machine-readable code of the marked sentinel, and the
// field-keyed details collected along the chain (invoice ids, names of
// failed validation fields, retry counters).
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewErrorResponse flattens an error built through this package into its
// response form. The display message is the hint attached closest to the
// failure; details from every WithReportableDetails call are merged.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Display: displayMessage(err),
			Code:    ErrorCode(err),
			Details: reportableDetails(err),
		},
	}
}

func displayMessage(err error) string {
	// GetAllHints walks post-order, so the innermost hint comes first
	for _, hint := range errors.GetAllHints(err) {
		if hint = strings.TrimSpace(hint); hint != "" {
			return hint
		}
	}
	return "An unexpected error occurred"
}

// ErrorCode returns the machine-readable code of the sentinel the error
// was marked with, or system_error when it carries no mark.
func ErrorCode(err error) string {
	for e := range statusCodeMap {
		if errors.Is(err, e) {
			if internal, ok := e.(*InternalError); ok {
				return internal.Code
			}
		}
	}
	return ErrCodeSystemError
}

func reportableDetails(err error) map[string]any {
	details := make(map[string]any)

	for _, sdp := range errors.GetAllSafeDetails(err) {
		for _, payload := range sdp.SafeDetails {
			if !strings.HasPrefix(payload, safeDetailsPrefix) {
				continue
			}
			var decoded map[string]any
			if jerr := json.Unmarshal([]byte(payload[len(safeDetailsPrefix):]), &decoded); jerr != nil {
				continue
			}
			for k, v := range decoded {
				details[k] = v
			}
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}
