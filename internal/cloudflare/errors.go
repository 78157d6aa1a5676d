package cloudflare

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a vendor rejection: a non-2xx response or a success=false
// envelope. Message carries the vendor's errors[].message text verbatim
// so callers can show it to the operator unmasked.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudflare: HTTP %d: %s", e.Status, e.Message)
}

// RecordConflictError means a non-CNAME record already owns a DNS name the
// reconciler was asked to point at a tunnel. It is never overwritten.
type RecordConflictError struct {
	Name string
	Type string
}

func (e *RecordConflictError) Error() string {
	return fmt.Sprintf("cloudflare: dns name %q is held by a %s record, refusing to overwrite", e.Name, e.Type)
}

// apiErrorContains reports whether err is an APIError whose vendor message
// contains any of the given substrings. The "already exists" recovery paths
// branch on vendor error text because the v4 API exposes no stable error
// codes for these conditions.
func apiErrorContains(err error, substrs ...string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, s := range substrs {
		if strings.Contains(apiErr.Message, s) {
			return true
		}
	}
	return false
}
