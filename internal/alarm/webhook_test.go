package alarm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierPostsBatch(t *testing.T) {
	var received Batch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	batch := Batch{Groups: []TankGroup{{Family: "ctrl", TankID: "1", Alarms: []Event{{RuleID: "x"}}}}}
	require.NoError(t, n.Notify(batch))
	assert.Len(t, received.Groups, 1)
	assert.Equal(t, "1", received.Groups[0].TankID)
}

func TestWebhookNotifierReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(Batch{Groups: []TankGroup{{Family: "ctrl", TankID: "1"}}})
	assert.Error(t, err)
}
