package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookNotifier_SendAlert(t *testing.T) {
	var captured webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hooks/muraqib", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		err := json.NewDecoder(r.Body).Decode(&captured)
		assert.NoError(t, err)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL + "/hooks/muraqib")

	err := notifier.SendAlert(context.Background(), "example.com", "critical", "3 hostnames failed to sync")

	assert.NoError(t, err)
	assert.Equal(t, "Muraqib Alert: Domain example.com", captured.Text)
	if assert.NotEmpty(t, captured.Attachments) {
		att := captured.Attachments[0]
		assert.Equal(t, "danger", att.Color)
		if assert.Len(t, att.Fields, 2) {
			assert.Equal(t, "critical", att.Fields[0].Value)
			assert.Equal(t, "3 hostnames failed to sync", att.Fields[1].Value)
		}
	}
}

func TestWebhookNotifier_SurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)

	err := notifier.SendAlert(context.Background(), "example.com", "warning", "boom")
	assert.ErrorContains(t, err, "status 500")
}
