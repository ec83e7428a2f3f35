package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bassista/labasica/internal/broadcast"
	"github.com/bassista/labasica/internal/cart"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDocumentSync struct{ mock.Mock }

func (m *mockDocumentSync) Status() broadcast.Status {
	return m.Called().Get(0).(broadcast.Status)
}

func (m *mockDocumentSync) ForceSync(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockCartSync struct{ mock.Mock }

func (m *mockCartSync) Status() cart.SyncStatus {
	return m.Called().Get(0).(cart.SyncStatus)
}

func (m *mockCartSync) ForceSync(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func newSyncRouter(docs DocumentSync, cartSync CartSync) *gin.Engine {
	gin.SetMode(gin.TestMode)
	sc := NewSyncController(docs, cartSync)
	r := gin.New()
	r.GET("/api/sync/status", sc.Status)
	r.POST("/api/sync", sc.Force)
	return r
}

func TestSyncController_Status(t *testing.T) {
	last := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	docs := &mockDocumentSync{}
	docs.On("Status").Return(broadcast.Status{IsOnline: true, LastSync: &last, HasListeners: true})
	cs := &mockCartSync{}
	cs.On("Status").Return(cart.SyncStatus{LastKnownUpdate: 42, StorageKey: cart.StorageKey})

	w := do(newSyncRouter(docs, cs), http.MethodGet, "/api/sync/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["isOnline"])
	assert.Equal(t, true, body["hasListeners"])
	assert.Equal(t, "2024-05-01T10:00:00Z", body["lastSync"])
	assert.EqualValues(t, 42, body["cart"].(map[string]any)["lastKnownUpdate"])
	docs.AssertExpectations(t)
	cs.AssertExpectations(t)
}

func TestSyncController_Force(t *testing.T) {
	docs := &mockDocumentSync{}
	docs.On("ForceSync", mock.Anything).Return(nil).Once()
	docs.On("Status").Return(broadcast.Status{IsOnline: true})
	cs := &mockCartSync{}
	cs.On("ForceSync", mock.Anything).Return(false, nil).Once()
	cs.On("Status").Return(cart.SyncStatus{})

	w := do(newSyncRouter(docs, cs), http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusOK, w.Code)
	docs.AssertExpectations(t)
	cs.AssertExpectations(t)
}

func TestSyncController_ForceFailureIsUnavailable(t *testing.T) {
	docs := &mockDocumentSync{}
	docs.On("ForceSync", mock.Anything).Return(errors.New("products.json: connection refused"))

	w := do(newSyncRouter(docs, nil), http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
