package server

import "net/http"

// Numeric error codes returned as error_code. Ranges: 1xxx validation,
// 2xxx missing state, 3xxx auth and limits, 4xxx internal.
const (
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidID       = 1004
	ErrCodeMissingRequired = 1009
	ErrCodeInvalidDate     = 1010
	ErrCodeInvalidOrdering = 1011
	ErrCodeInvalidUpload   = 1012
	ErrCodeMediaType       = 1013
	ErrCodeInvalidTenant   = 1014

	ErrCodeRecordNotFound = 2001
	ErrCodeBlobNotFound   = 2002

	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003
	ErrCodeUnknownTenant     = 3004

	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeUploadFailed   = 4003
	ErrCodeNotImplemented = 4005
)

// statusDefaults fills code and error_code for errors that carry neither.
var statusDefaults = map[int]struct {
	code    string
	errCode int
}{
	http.StatusBadRequest:            {"invalid_argument", ErrCodeInvalidArgument},
	http.StatusUnauthorized:          {"unauthorized", ErrCodeUnauthorized},
	http.StatusForbidden:             {"forbidden", ErrCodeForbidden},
	http.StatusNotFound:              {"not_found", ErrCodeRecordNotFound},
	http.StatusMethodNotAllowed:      {"not_implemented", ErrCodeNotImplemented},
	http.StatusRequestEntityTooLarge: {"invalid_argument", ErrCodeRequestTooLarge},
	http.StatusTooManyRequests:       {"resource_exhausted", ErrCodeResourceExhausted},
	http.StatusInternalServerError:   {"internal", ErrCodeInternal},
	http.StatusNotImplemented:        {"not_implemented", ErrCodeNotImplemented},
}
