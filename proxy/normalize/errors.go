package normalize

import (
	"fmt"
	"net/http"
)

// RequestError is a caller-input failure with a fixed, safe-to-return message.
// Everything the normalizer rejects surfaces as one of these; they are never
// confused with upstream failures.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

func errInvalidImageURL() *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: "Invalid image URL format"}
}

func errInvalidPayloadJSON() *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: "Invalid JSON in payload field"}
}

func errTooManyFiles(limit int) *RequestError {
	return &RequestError{
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("Too many uploaded files: limit is %d per request", limit),
	}
}

func errFileTooLarge(field string, limit int64) *RequestError {
	return &RequestError{
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("Uploaded file %q exceeds the maximum size of %d bytes", field, limit),
	}
}

func errDisallowedMimeType(field, mimeType string) *RequestError {
	return &RequestError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("Uploaded file %q has disallowed type %q", field, mimeType),
	}
}

func errUnresolvedFileKey(key string) *RequestError {
	return &RequestError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("No uploaded file matches file key %q", key),
	}
}

func errNoMessageForAttachment() *RequestError {
	return &RequestError{
		Status:  http.StatusBadRequest,
		Message: "Request has no messages to attach uploaded files to",
	}
}
