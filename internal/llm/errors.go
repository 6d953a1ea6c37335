package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrEmptyResponse means the model answered without any content block.
	// It is a recognition outcome, not a failure.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrQuotaExceeded means the provider rate-limited the model
	ErrQuotaExceeded = errors.New("model quota exceeded")
	// ErrModelNotFound means the model id is invalid or not accessible
	ErrModelNotFound = errors.New("model not found")
	// ErrModelBlocked is returned locally for models already known to be over quota
	ErrModelBlocked = errors.New("model is blocked after a quota error")
)

// StatusError is an HTTP failure reported by a provider
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.Code, e.Body)
}

// ClassifyError maps a provider error onto ErrQuotaExceeded or
// ErrModelNotFound. Anything else is returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrModelNotFound) || errors.Is(err, ErrModelBlocked) {
		return err
	}

	switch statusCode(err) {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrModelNotFound, err)
	}

	if isRateLimitError(err) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// statusCode extracts an HTTP-like status from the error chain, 0 if none
func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}

	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		if code := aerr.HTTPCode(); code > 0 {
			return code
		}
		if s := aerr.GRPCStatus(); s != nil {
			return grpcToHTTP(s.Code())
		}
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
		return grpcToHTTP(s.Code())
	}
	return 0
}

func grpcToHTTP(code codes.Code) int {
	switch code {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.NotFound:
		return http.StatusNotFound
	default:
		return 0
	}
}

// isRateLimitError checks the message for rate limit markers
func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted")
}
