package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battmon/internal/models"
)

func TestFormatHistory(t *testing.T) {
	logs := map[int64]models.LogSample{
		3000: {Voltage: 3.9, Current: -1.5, Cycle: "discharging"},
		1000: {Voltage: 4.2, Current: -1.0, Cycle: "discharging"},
		2000: {Voltage: models.Float(nan()), Current: -1.2, Cycle: "discharging"},
	}

	got := FormatHistory(logs)

	assert.Equal(t, "1000,4.2,-1,discharging\n3000,3.9,-1.5,discharging\n", got)
}

func TestFormatHistoryEmpty(t *testing.T) {
	assert.Empty(t, FormatHistory(nil))
}

func TestClientSuggest(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/suggest", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(Suggestion{SuggestedVoltage: 4.2, SuggestedCurrent: 1.1, Reasoning: "history shows a healthy pack"})
	}))
	defer server.Close()

	client := NewClient(server.URL, NewDefaultHTTPClient(time.Second))
	suggestion, err := client.Suggest(context.Background(), Request{
		PortName:       "Port 3",
		BatteryType:    "LiPo",
		SessionType:    models.TypeDischarging,
		HistoricalData: "1000,4.2,-1,discharging\n",
	})
	require.NoError(t, err)

	assert.Equal(t, 4.2, suggestion.SuggestedVoltage)
	assert.Equal(t, 1.1, suggestion.SuggestedCurrent)
	assert.Equal(t, "history shows a healthy pack", suggestion.Reasoning)
	assert.Equal(t, "Port 3", received.PortName)
	assert.Equal(t, models.TypeDischarging, received.SessionType)
}

func TestClientSuggestErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, NewDefaultHTTPClient(time.Second))
	_, err := client.Suggest(context.Background(), Request{})
	assert.Error(t, err)
}

func nan() float64 {
	var zero float64
	return 0 / zero
}
