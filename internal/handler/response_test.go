package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/nowplaying-relay-go/internal/sse"
)

type fixedPoller int

func (p fixedPoller) Active() int { return int(p) }

func TestHealthHandler(t *testing.T) {
	t.Run("reports fan-out counters", func(t *testing.T) {
		broker := sse.NewBroker(nil)
		defer broker.Close()
		client := broker.Subscribe("avatar-1")
		defer broker.Unsubscribe(client)

		rec := httptest.NewRecorder()
		NewHealthHandler(broker, fixedPoller(3)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.Contains(t, rec.Body.String(), `"sseClients":1`)
		assert.Contains(t, rec.Body.String(), `"pollers":3`)
	})

	t.Run("works without dependencies", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pollers")
	})
}
