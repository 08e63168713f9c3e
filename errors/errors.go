package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error surfaced to the operator.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GenericMessage is shown when the backend gives no usable message.
const GenericMessage = "Something went wrong. Please try again."

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message, nil)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message, nil)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, message, nil)
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, message, nil)
}

// BackendUnreachable wraps a transport failure talking to the API service.
func BackendUnreachable(err error) *Error {
	return New(http.StatusBadGateway, "backend unreachable", err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, GenericMessage, err)
}

// As extracts an *Error from err, wrapping unknown errors as internal.
func As(err error) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsNotFound reports whether err carries a 404.
func IsNotFound(err error) bool {
	var appErr *Error
	return stderrors.As(err, &appErr) && appErr.Code == http.StatusNotFound
}

// StatusOf returns the HTTP status attached to err, or 500.
func StatusOf(err error) int {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Problem is the error envelope returned by the API service. Different
// endpoints populate different fields.
type Problem struct {
	Detail      json.RawMessage `json:"detail"`
	Description string          `json:"error_description"`
	Error       string          `json:"error"`
	Msg         string          `json:"msg"`
	Message     string          `json:"message"`
}

// FromResponse builds an Error from a non-2xx backend response body.
func FromResponse(status int, body []byte) *Error {
	msg := ""
	var p Problem
	if len(body) > 0 && json.Unmarshal(body, &p) == nil {
		msg = problemText(p)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = GenericMessage
	}
	return New(status, msg, nil)
}

func problemText(p Problem) string {
	if len(p.Detail) > 0 {
		var s string
		if err := json.Unmarshal(p.Detail, &s); err == nil && s != "" {
			return s
		}
		// validation errors arrive as a list of {msg}
		var list []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(p.Detail, &list); err == nil && len(list) > 0 && list[0].Msg != "" {
			return list[0].Msg
		}
	}
	for _, s := range []string{p.Description, p.Error, p.Msg} {
		if s != "" {
			return s
		}
	}
	return p.Message
}

// Respond writes err as {"error": message} and aborts.
func Respond(c *gin.Context, err error) {
	appErr := As(err)
	c.AbortWithStatusJSON(appErr.Code, gin.H{"error": appErr.Message})
}

// ErrorMiddleware renders the last error attached with c.Error.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		Respond(c, c.Errors.Last().Err)
	}
}
