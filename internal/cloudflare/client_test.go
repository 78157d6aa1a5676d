package cloudflare

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyToken_AccountScoped(t *testing.T) {
	f := newFakeAPI(t)
	f.handle("GET /accounts/acct123/tokens/verify", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]string{"status": "active"})
	})

	ok := f.client("acct123").VerifyToken(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 1, f.total(), "exactly one HTTP call per verification")
	assert.Equal(t, 1, f.count(http.MethodGet, "/accounts/acct123/tokens/verify"))
}

func TestVerifyToken_UserScoped(t *testing.T) {
	f := newFakeAPI(t)
	f.handle("GET /user/tokens/verify", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]string{"status": "active"})
	})

	ok := f.client("").VerifyToken(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 1, f.total())
	assert.Equal(t, 1, f.count(http.MethodGet, "/user/tokens/verify"))
}

func TestVerifyToken_Inactive(t *testing.T) {
	f := newFakeAPI(t)
	f.handle("GET /user/tokens/verify", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]string{"status": "disabled"})
	})

	assert.False(t, f.client("").VerifyToken(context.Background()))
}

func TestVerifyToken_VendorError(t *testing.T) {
	f := newFakeAPI(t)
	f.handle("GET /user/tokens/verify", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusForbidden, "Invalid API Token")
	})

	// Failures never surface as errors from verification, only as false.
	assert.False(t, f.client("").VerifyToken(context.Background()))
}

func TestDo_SurfacesVendorMessage(t *testing.T) {
	f := newFakeAPI(t)
	f.handle("GET /accounts/acct1/cfd_tunnel", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, []Tunnel{})
	})
	f.handle("POST /accounts/acct1/cfd_tunnel", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusBadRequest, "tunnel name is taken")
	})

	_, err := f.client("acct1").FindOrCreateTunnel(context.Background(), "edge-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "tunnel name is taken", apiErr.Message)
}

func TestDo_RawBodyWhenNotAnEnvelope(t *testing.T) {
	f := newFakeAPI(t)
	f.handle("GET /accounts/acct1/cfd_tunnel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	})

	_, err := f.client("acct1").FindOrCreateTunnel(context.Background(), "edge-1")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}
