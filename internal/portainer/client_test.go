package portainer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimani-dev/muraqib/internal/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.PortainerConfig{
		BaseURL:        srv.URL,
		APIKey:         "ptr_test_key",
		RequestTimeout: 5 * time.Second,
	})
}

func TestListEndpoints_SendsAPIKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/endpoints", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ptr_test_key", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"Id":1,"Name":"local","URL":"unix:///var/run/docker.sock","Status":1}]`))
	})

	endpoints, err := testClient(t, mux).ListEndpoints(context.Background())
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, 1, endpoints[0].ID)
	assert.Equal(t, "local", endpoints[0].Name)
}

func TestListStacks_FiltersByEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stacks", func(w http.ResponseWriter, r *http.Request) {
		assert.JSONEq(t, `{"EndpointID":3}`, r.URL.Query().Get("filters"))
		w.Write([]byte(`[{"Id":7,"Name":"media","EndpointId":3,"Status":1}]`))
	})

	stacks, err := testClient(t, mux).ListStacks(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, stacks, 1)
	assert.Equal(t, "media", stacks[0].Name)
	assert.Equal(t, 3, stacks[0].EndpointID)
}

func TestStartStack_PostsWithEndpointQuery(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stacks/7/start", func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "3", r.URL.Query().Get("endpointId"))
		w.Write([]byte(`{"Id":7,"Status":1}`))
	})

	require.NoError(t, testClient(t, mux).StartStack(context.Background(), 3, 7))
	assert.True(t, called)
}

func TestListContainers_UsesDockerProxy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/endpoints/3/docker/containers/json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("all"))
		w.Write([]byte(`[{"Id":"abc123","Names":["/jellyfin"],"Image":"jellyfin:latest","State":"running","Status":"Up 2 days"}]`))
	})

	containers, err := testClient(t, mux).ListContainers(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "running", containers[0].State)
}

func TestDo_SurfacesPortainerErrorBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stacks/7/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"stack is already inactive","details":"stop not allowed"}`))
	})

	err := testClient(t, mux).StopStack(context.Background(), 3, 7)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Message, "stack is already inactive")
	assert.Contains(t, apiErr.Message, "stop not allowed")
}
