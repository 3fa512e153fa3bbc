package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"
)

// DownstreamErrorResponse covers the error bodies returned by the APIs this
// service talks to: the {"error":{"code","message"}} envelope used by our own
// handlers and the {"errors": ...} shape used by commerce admin APIs, where
// errors is either a string or a map of field to messages.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Errors json.RawMessage `json:"errors"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an appropriate AppError. Structured bodies keep their code and
// message; anything else is reported with the raw body. The response body is
// fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil {
		switch {
		case downstream.Error != nil:
			return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, serviceName)
		case len(downstream.Errors) > 0 && string(downstream.Errors) != "null":
			return mapDownstreamError(resp.StatusCode, "", flattenErrors(downstream.Errors), serviceName)
		}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return mapDownstreamError(resp.StatusCode, "", strings.TrimSpace(string(bodyBytes)), serviceName)
	}
	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

// flattenErrors renders {"errors": ...} as one readable line.
func flattenErrors(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}

	var fields map[string]any
	if json.Unmarshal(raw, &fields) == nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			switch v := fields[k].(type) {
			case []any:
				msgs := make([]string, 0, len(v))
				for _, m := range v {
					msgs = append(msgs, fmt.Sprint(m))
				}
				parts = append(parts, fmt.Sprintf("%s %s", k, strings.Join(msgs, ", ")))
			default:
				parts = append(parts, fmt.Sprintf("%s %v", k, v))
			}
		}
		return strings.Join(parts, "; ")
	}

	return string(raw)
}

// mapDownstreamError translates a downstream status code and error code into
// an AppError that preserves the error semantics.
func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusTooManyRequests:
		return apperrors.RateLimited(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", status)
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
