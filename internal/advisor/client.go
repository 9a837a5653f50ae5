package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"battmon/internal/models"
)

// HTTPDoer defines http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client calls the external parameter-advisor service. The engine only hands
// it a formatted history blob and a battery type; the advisory logic lives on
// the other side and the response is passed through for display.
type Client struct {
	baseURL string
	client  HTTPDoer
}

// NewClient builds a client with base URL.
func NewClient(baseURL string, client HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// NewDefaultHTTPClient returns *http.Client with timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Request is the advisor input payload.
type Request struct {
	PortName       string             `json:"portName"`
	BatteryType    string             `json:"batteryType"`
	SessionType    models.SessionType `json:"sessionType"`
	HistoricalData string             `json:"historicalData"`
}

// Suggestion is the advisor output, displayed verbatim.
type Suggestion struct {
	SuggestedVoltage float64 `json:"suggestedVoltage"`
	SuggestedCurrent float64 `json:"suggestedCurrent"`
	Reasoning        string  `json:"reasoning"`
}

// Suggest posts the request and decodes the suggestion.
func (c *Client) Suggest(ctx context.Context, req Request) (*Suggestion, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("advisor: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/suggest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("advisor: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("advisor: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisor: unexpected status %d", resp.StatusCode)
	}

	var suggestion Suggestion
	if err := json.Unmarshal(respBody, &suggestion); err != nil {
		return nil, fmt.Errorf("advisor: decode response: %w", err)
	}
	return &suggestion, nil
}

// FormatHistory serializes logs as newline-delimited
// "timestamp,voltage,current,cycle" rows in timestamp order. Samples with
// non-finite values are skipped.
func FormatHistory(logs map[int64]models.LogSample) string {
	timestamps := make([]int64, 0, len(logs))
	for ts := range logs {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	var b strings.Builder
	for _, ts := range timestamps {
		sample := logs[ts]
		if !sample.Voltage.Valid() || !sample.Current.Valid() {
			continue
		}
		b.WriteString(strconv.FormatInt(ts, 10))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(float64(sample.Voltage), 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(float64(sample.Current), 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(sample.Cycle)
		b.WriteByte('\n')
	}
	return b.String()
}
