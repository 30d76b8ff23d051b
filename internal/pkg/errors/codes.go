package errors

import (
	"fmt"
	"net/http"
)

// Code ties a business error code to its HTTP status and default message
type Code struct {
	Code    int
	Status  int
	Message string
}

const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer = 1000
	ErrInvalidParams  = 1001
	ErrNotFound       = 1002
	ErrConflict       = 1005
	ErrBadRequest     = 1007
	ErrServiceUnavail = 1008
	ErrTimeout        = 1009

	// Catalog errors (6000-6999)
	ErrFileNotFound       = 6000
	ErrFileReferenced     = 6001
	ErrCatalogConflict    = 6002
	ErrBackendUnavailable = 6003
	ErrQuerySuperseded    = 6004
	ErrDownloadFailed     = 6005
	ErrBlobNotFound       = 6006
	ErrBatchTooLarge      = 6007
	ErrPresignUnsupported = 6008
	ErrInvalidationFailed = 6009
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:  {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:       {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:       {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrBadRequest:     {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail: {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},
	ErrTimeout:        {ErrTimeout, http.StatusGatewayTimeout, "Request timed out"},

	ErrFileNotFound:       {ErrFileNotFound, http.StatusNotFound, "File not found"},
	ErrFileReferenced:     {ErrFileReferenced, http.StatusConflict, "File is referenced by duplicates and cannot be deleted"},
	ErrCatalogConflict:    {ErrCatalogConflict, http.StatusConflict, "Catalog changed concurrently"},
	ErrBackendUnavailable: {ErrBackendUnavailable, http.StatusServiceUnavailable, "Catalog backend unavailable"},
	ErrQuerySuperseded:    {ErrQuerySuperseded, http.StatusConflict, "Query superseded by a newer request"},
	ErrDownloadFailed:     {ErrDownloadFailed, http.StatusBadGateway, "Download failed"},
	ErrBlobNotFound:       {ErrBlobNotFound, http.StatusNotFound, "File content not found"},
	ErrBatchTooLarge:      {ErrBatchTooLarge, http.StatusBadRequest, "Too many ids in batch"},
	ErrPresignUnsupported: {ErrPresignUnsupported, http.StatusNotImplemented, "Blob store cannot presign downloads"},
	ErrInvalidationFailed: {ErrInvalidationFailed, http.StatusServiceUnavailable, "File deleted but other instances may still list it"},
}

// GetCode returns the Code for code, falling back to ErrInternalServer
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError reports whether code maps to a 4xx status
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether code maps to a 5xx status
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError renders the message for code with optional detail
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
