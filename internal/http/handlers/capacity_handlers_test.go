package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"battmon/internal/mirror"
	"battmon/internal/models"
	"battmon/internal/service"
	"battmon/internal/store"
)

func newCapacityTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	svc := service.NewPortsService(st, mirror.New(st, zap.NewNop()), nil, zap.NewNop())

	mux := http.NewServeMux()
	mux.Handle("PUT /ports/{port}/capacity", NewSetCapacityHandler(svc))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, st
}

func putCapacity(t *testing.T, server *httptest.Server, port, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, server.URL+"/ports/"+port+"/capacity", strings.NewReader(body))
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSetCapacityHandler(t *testing.T) {
	ctx := context.Background()
	server, st := newCapacityTestServer(t)

	require.NoError(t, st.UpdatePort(ctx, "port_1", map[string]any{store.FieldCurrentSessionID: "s1"}))
	require.NoError(t, st.UpdateSession(ctx, "port_1", "s1", map[string]any{
		store.FieldStatus: string(models.StatusDischarging),
		store.FieldType:   string(models.TypeDischarging),
	}))

	resp := putCapacity(t, server, "port_1", `{"ratedCapacity": 2.2}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	session, err := st.Session(ctx, "port_1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2.2, session.RatedCapacity)
}

func TestSetCapacityHandlerRejectsCharging(t *testing.T) {
	ctx := context.Background()
	server, st := newCapacityTestServer(t)

	require.NoError(t, st.UpdatePort(ctx, "port_1", map[string]any{store.FieldCurrentSessionID: "s1"}))
	require.NoError(t, st.UpdateSession(ctx, "port_1", "s1", map[string]any{
		store.FieldStatus: string(models.StatusCharging),
		store.FieldType:   string(models.TypeCharging),
	}))

	resp := putCapacity(t, server, "port_1", `{"ratedCapacity": 2.2}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSetCapacityHandlerBadBody(t *testing.T) {
	server, _ := newCapacityTestServer(t)

	resp := putCapacity(t, server, "port_1", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = putCapacity(t, server, "port_1", `{"ratedCapacity": -5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetCapacityHandlerUnknownPort(t *testing.T) {
	server, _ := newCapacityTestServer(t)

	resp := putCapacity(t, server, "port_9", `{"ratedCapacity": 2.2}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
