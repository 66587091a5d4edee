package main

import (
	"context"
	"errors"
	"net"
	"slices"

	"deptcms/internal/api"
	"deptcms/internal/tenant"
)

// formatCLIError returns the error message followed by any hints for it.
func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}
	lines := append([]string{err.Error()}, hintsFor(err)...)
	return uniqueLines(lines)
}

func hintsFor(err error) []string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiHints(apiErr)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, tenant.ErrTenant):
		return []string{"hint: departments exist once a user is provisioned for them: deptcms admin user add <name> --department <key>"}
	case errors.Is(err, context.DeadlineExceeded):
		return []string{"hint: request timed out; check server health or increase DEPTCMS_HTTP_TIMEOUT."}
	case errors.As(err, &netErr):
		return []string{
			"hint: ensure a deptcms server is running at DEPTCMS_API_URL.",
			"hint: start one with: deptcms srv",
		}
	}
	return nil
}

func apiHints(apiErr *api.APIError) []string {
	var hints []string
	switch apiErr.Code {
	case "unauthorized", "forbidden":
		hints = append(hints, "hint: DEPTCMS_API_TOKEN must hold a session token from POST /v1/auth/login.")
	case "resource_exhausted":
		hints = append(hints, "hint: the server is at its upload or login limit; retry shortly.")
	case "":
		hints = append(hints, "hint: verify DEPTCMS_API_URL points to a deptcms server.")
	}
	if apiErr.Status >= 500 {
		hints = append(hints, "hint: server returned an internal error; check server logs for details.")
	}
	return hints
}

func uniqueLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" && !slices.Contains(out, line) {
			out = append(out, line)
		}
	}
	return out
}
