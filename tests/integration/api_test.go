package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Config for integration tests
const (
	BaseURL = "http://localhost:8080"
)

func TestHealthCheck(t *testing.T) {
	resp, err := http.Get(BaseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListAccounts(t *testing.T) {
	resp, err := http.Get(BaseURL + "/api/v1/accounts")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestAccountLifecycle needs a real Cloudflare API token because account
// creation verifies the token against the live API.
func TestAccountLifecycle(t *testing.T) {
	apiToken := os.Getenv("MURAQIB_TEST_CF_TOKEN")
	accountID := os.Getenv("MURAQIB_TEST_CF_ACCOUNT")
	if apiToken == "" || accountID == "" {
		t.Skip("MURAQIB_TEST_CF_TOKEN / MURAQIB_TEST_CF_ACCOUNT not set")
	}

	// 1. Create account
	id := createAccount(t, accountID, apiToken)

	// 2. Get account
	getAccount(t, id)

	// 3. Re-verify token
	verifyAccount(t, id)

	// 4. Delete account
	deleteAccount(t, id)
}

func createAccount(t *testing.T, cfAccountID, apiToken string) string {
	payload := map[string]interface{}{
		"name":          fmt.Sprintf("Integration Test %d", time.Now().UnixNano()),
		"cf_account_id": cfAccountID,
		"api_token":     apiToken,
	}
	body, _ := json.Marshal(payload)

	resp, err := http.Post(BaseURL+"/api/v1/accounts", "application/json", bytes.NewBuffer(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		// print body for debugging
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		t.Fatalf("expected 201 Created, got %d: %s", resp.StatusCode, buf.String())
	}

	var result map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&result)
	require.NoError(t, err)

	id, ok := result["id"].(string)
	require.True(t, ok, "response should contain account id")
	return id
}

func getAccount(t *testing.T, id string) {
	resp, err := http.Get(BaseURL + "/api/v1/accounts/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func verifyAccount(t *testing.T, id string) {
	resp, err := http.Post(BaseURL+"/api/v1/accounts/"+id+"/verify", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func deleteAccount(t *testing.T, id string) {
	req, err := http.NewRequest(http.MethodDelete, BaseURL+"/api/v1/accounts/"+id, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestMain(m *testing.M) {
	// Optional: Check if service is up before running tests
	if err := waitForService(BaseURL + "/health"); err != nil {
		fmt.Printf("Skipping integration tests: service not available at %s\n", BaseURL)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func waitForService(url string) error {
	for i := 0; i < 30; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return nil
			}
		}
		time.Sleep(1 * time.Second)
	}
	return fmt.Errorf("service not reachable")
}
