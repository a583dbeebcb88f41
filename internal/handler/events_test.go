package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
	"github.com/openclaw/nowplaying-relay-go/internal/sse"
)

// readEvent scans the stream until the next event of the given type and
// returns its data line.
func readEvent(t *testing.T, scanner *bufio.Scanner, eventType string) string {
	t.Helper()

	want := "event: " + eventType
	for scanner.Scan() {
		if scanner.Text() != want {
			continue
		}
		require.True(t, scanner.Scan())
		return strings.TrimPrefix(scanner.Text(), "data: ")
	}
	t.Fatalf("stream ended before %q: %v", eventType, scanner.Err())
	return ""
}

func TestEventsHandler_ServeHTTP(t *testing.T) {
	t.Run("returns 400 when id is missing", func(t *testing.T) {
		handler := NewEventsHandler(nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_ID")
	})

	t.Run("streams playback changes for the id", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedSession(t, "avatar-1")
		env.provider.playback = playingTrack()

		server := httptest.NewServer(env.router)
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events?id=avatar-1", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		scanner := bufio.NewScanner(resp.Body)
		assert.JSONEq(t, `{"id":"avatar-1"}`, readEvent(t, scanner, "connected"))

		read, err := http.Get(server.URL + "/current-track?id=avatar-1")
		require.NoError(t, err)
		read.Body.Close()

		var snapshot model.PlaybackSnapshot
		require.NoError(t, json.Unmarshal([]byte(readEvent(t, scanner, sse.EventPlayback)), &snapshot))
		assert.Equal(t, model.PlaybackPlaying, snapshot.State)
		assert.Equal(t, "Windowlicker", snapshot.TrackTitle)
	})

	t.Run("replays the cached snapshot on connect", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.snapshots.Put(context.Background(), &model.PlaybackSnapshot{
			ID:          "avatar-1",
			State:       model.PlaybackPaused,
			TrackTitle:  "Xtal",
			ArtistNames: []string{"Aphex Twin"},
			CapturedAt:  time.Now(),
		}, time.Minute))

		server := httptest.NewServer(env.router)
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events?id=avatar-1", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		data := readEvent(t, scanner, sse.EventPlayback)
		assert.Contains(t, data, `"trackTitle":"Xtal"`)
	})
}

func TestEventsHandler_sendEvent(t *testing.T) {
	t.Run("formats SSE event correctly", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()

		err := handler.sendEvent(rec, rec, "connected", map[string]any{"id": "avatar-1"})

		assert.NoError(t, err)
		body := rec.Body.String()
		assert.Contains(t, body, "event: connected\n")
		assert.Contains(t, body, `data: {"id":"avatar-1"}`)
		assert.True(t, strings.HasSuffix(body, "\n\n"))
	})
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	t.Run("writes event and data lines", func(t *testing.T) {
		handler := &EventsHandler{}
		rec := httptest.NewRecorder()

		event := sse.Event{
			Type: sse.EventPlayback,
			Data: json.RawMessage(`{"state": "paused"}`),
		}

		err := handler.sendRawEvent(rec, rec, event)

		assert.NoError(t, err)
		body := rec.Body.String()
		assert.Contains(t, body, "event: playback\n")
		assert.Contains(t, body, `data: {"state": "paused"}`)
	})
}
