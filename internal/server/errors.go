package server

import (
	"errors"
	"fmt"
	"net/http"

	"deptcms/internal/blobstore"
	"deptcms/internal/ingest"
	"deptcms/internal/records"
	"deptcms/internal/refs"
	"deptcms/internal/tenant"
)

// apiError carries the HTTP status and both error codes of a failure.
type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return http.StatusText(e.status)
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error { return e.err }

// makeAPIError wraps err unless it already is an apiError with a status.
func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}
	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequest(err error) error {
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func unauthorized(err error) error {
	return makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, err)
}

func forbiddenCode(err error, code int) error {
	return makeAPIError(http.StatusForbidden, "forbidden", code, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, err)
}

// classifyError maps package sentinels onto API errors. Client-side upload
// errors are checked before UploadError, which also wraps them.
func classifyError(err error) error {
	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}
	var maxBytes *http.MaxBytesError
	var uploadErr *ingest.UploadError

	switch {
	case errors.Is(err, tenant.ErrUnknownTenant):
		return forbiddenCode(err, ErrCodeUnknownTenant)
	case errors.Is(err, tenant.ErrTenant):
		return badRequestCode(err, ErrCodeInvalidTenant)
	case errors.Is(err, records.ErrRecordNotFound):
		return notFoundCode(err, ErrCodeRecordNotFound)
	case errors.Is(err, blobstore.ErrBlobNotFound):
		return notFoundCode(err, ErrCodeBlobNotFound)
	case errors.Is(err, refs.ErrInvalidOrdering):
		return badRequestCode(err, ErrCodeInvalidOrdering)
	case errors.As(err, &maxBytes):
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	case errors.Is(err, ingest.ErrMediaTypeNotAllowed):
		return badRequestCode(err, ErrCodeMediaType)
	case ingest.IsClientError(err):
		return badRequestCode(err, ErrCodeInvalidUpload)
	case errors.As(err, &uploadErr):
		return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeUploadFailed, err)
	default:
		return internalError(err)
	}
}

// describeError returns status, code and error_code for err as written to clients.
func describeError(status int, err error) (int, string, int) {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.status != 0 {
		status = apiErr.status
	}
	def := statusDefaults[status]
	code, errCode := def.code, def.errCode
	if errors.As(err, &apiErr) {
		if apiErr.code != "" {
			code = apiErr.code
		}
		if apiErr.errCode > 0 {
			errCode = apiErr.errCode
		}
	}
	return status, code, errCode
}
