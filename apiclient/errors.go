package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/internal/utils"
)

// ErrorKind classifies a non-2xx API response body
type ErrorKind string

const (
	// KindFieldErrors is an object of field name to message list
	KindFieldErrors ErrorKind = "fieldErrors"
	// KindDetail is a single human readable message
	KindDetail ErrorKind = "detail"
	// KindUnknown is anything else, including an empty body
	KindUnknown ErrorKind = "unknown"
)

const maxErrorBody = 64 << 10

// APIError is a parsed non-2xx response
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
	Fields     map[string][]string
	// Raw is the undecoded body, kept for KindUnknown
	Raw []byte
}

func (e *APIError) Error() string {
	if e.Kind == KindFieldErrors {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], " ")))
		}
		return fmt.Sprintf("api error %d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the response onto the shared error taxonomy
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return errors.ErrUnauthorized
	case e.Kind == KindFieldErrors:
		return errors.ErrServerValidation
	case e.StatusCode == http.StatusNotFound:
		return errors.ErrNotFound
	case e.StatusCode >= http.StatusInternalServerError:
		return errors.ErrInternal
	}
	return nil
}

// FieldError returns the first message recorded for field
func (e *APIError) FieldError(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// ParseError reads and classifies the body of resp. The body is consumed but not closed.
func ParseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return parseErrorBody(resp.StatusCode, body)
}

func parseErrorBody(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Kind: KindUnknown, Message: http.StatusText(status), Raw: body}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return apiErr
	}

	switch v := decoded.(type) {
	case string:
		if v != "" {
			apiErr.Kind = KindDetail
			apiErr.Message = v
			apiErr.Raw = nil
		}
	case map[string]any:
		for _, key := range []string{"detail", "message", "error"} {
			if msg, ok := v[key].(string); ok && msg != "" {
				apiErr.Kind = KindDetail
				apiErr.Message = msg
				apiErr.Raw = nil
				return apiErr
			}
		}
		fields := make(map[string][]string)
		for name, raw := range v {
			switch msgs := raw.(type) {
			case string:
				fields[name] = []string{msgs}
			case []any:
				if list := utils.ToStringSlice(msgs); len(list) > 0 {
					fields[name] = list
				}
			}
		}
		if len(fields) > 0 {
			apiErr.Kind = KindFieldErrors
			apiErr.Fields = fields
			apiErr.Message = "validation failed"
			apiErr.Raw = nil
		}
	}
	return apiErr
}

// credentialsError hides server detail behind the generic credentials message
type credentialsError struct {
	cause *APIError
}

func (e *credentialsError) Error() string {
	return errors.ErrInvalidCredentials.Error()
}

func (e *credentialsError) Unwrap() []error {
	return []error{errors.ErrInvalidCredentials, e.cause}
}
