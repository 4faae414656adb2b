package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taufiq-1904/WeighBridge-IoT/internal/broker"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/command"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/state"
)

type mockDispatcher struct {
	err      error
	requests []command.Request
}

func (m *mockDispatcher) Dispatch(req command.Request) error {
	m.requests = append(m.requests, req)
	return m.err
}

func newCommandTestRouter(dispatcher CommandDispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, state.New("w", "s"), dispatcher, nil)
	r := gin.New()
	r.POST("/api/command", h.PostCommand)
	return r
}

func postCommand(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestPostCommand(t *testing.T) {
	testCases := []struct {
		name        string
		body        string
		dispatchErr error
		wantStatus  int
		wantOK      bool
	}{
		{"accepted", `{"command":"OPEN1"}`, nil, http.StatusOK, true},
		{"missing command field", `{}`, nil, http.StatusBadRequest, false},
		{"invalid command", `{"command":"BOGUS"}`, command.ErrInvalidCommand, http.StatusBadRequest, false},
		{"broker down", `{"command":"OPEN1"}`, broker.ErrNotConnected, http.StatusServiceUnavailable, false},
		{"ack timeout", `{"command":"OPEN1"}`, broker.ErrAckTimeout, http.StatusGatewayTimeout, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dispatcher := &mockDispatcher{err: tc.dispatchErr}
			r := newCommandTestRouter(dispatcher)

			w := postCommand(r, tc.body)
			assert.Equal(t, tc.wantStatus, w.Code)

			var resp struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantOK, resp.Success)
			if !tc.wantOK {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestGetStatus_ReturnsSnapshotWithConnectivity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	states := state.New("t/weight", "t/status")
	states.SetBrokerConnected(true)
	_, err := states.Apply("t/weight", []byte("4500"))
	require.NoError(t, err)

	h := NewHandler(nil, states, &mockDispatcher{}, nil)
	r := gin.New()
	r.GET("/api/status", h.GetStatus)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var snap state.DeviceState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.NotNil(t, snap.Weight)
	assert.Equal(t, 4500.0, *snap.Weight)
	assert.True(t, snap.BrokerConnected)
}
