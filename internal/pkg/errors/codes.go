package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Search result errors (2000-2999)
	ErrSearchNotFound     = 2000
	ErrQueryNotFound      = 2001
	ErrStaleGeneration    = 2002
	ErrInvalidGeneration  = 2003
	ErrMalformedResult    = 2004
	ErrBackendUnavailable = 2005
	ErrBackendRejected    = 2006
	ErrExportFailed       = 2007

	// Widget errors (3000-3999)
	ErrWidgetInvalid  = 3000
	ErrWidgetNotFound = 3001
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrSearchNotFound:     {ErrSearchNotFound, http.StatusNotFound, "Search result not found"},
	ErrQueryNotFound:      {ErrQueryNotFound, http.StatusNotFound, "Query not found in search result"},
	ErrStaleGeneration:    {ErrStaleGeneration, http.StatusConflict, "Search generation has been superseded"},
	ErrInvalidGeneration:  {ErrInvalidGeneration, http.StatusBadRequest, "Unknown search generation"},
	ErrMalformedResult:    {ErrMalformedResult, http.StatusUnprocessableEntity, "Malformed search result"},
	ErrBackendUnavailable: {ErrBackendUnavailable, http.StatusBadGateway, "Search backend unavailable"},
	ErrBackendRejected:    {ErrBackendRejected, http.StatusBadGateway, "Search backend rejected the request"},
	ErrExportFailed:       {ErrExportFailed, http.StatusInternalServerError, "Search export failed"},

	ErrWidgetInvalid:  {ErrWidgetInvalid, http.StatusBadRequest, "Invalid widget"},
	ErrWidgetNotFound: {ErrWidgetNotFound, http.StatusNotFound, "Widget not found"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
