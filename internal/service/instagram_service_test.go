package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/postqueue/configs"
	"github.com/maheshrc27/postqueue/internal/models"
)

type fakeGraph struct {
	mu         sync.Mutex
	containers []map[string]any
	published  atomic.Int32
	polls      atomic.Int32
	// statuses are returned by successive container polls; the last repeats.
	statuses []string
	onPoll    func()
	onPublish func()
	failWith  func(w http.ResponseWriter) bool
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.failWith != nil && g.failWith(w) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v21.0/")

	switch {
	case r.URL.Path == "/refresh_access_token":
		writeJSON(w, map[string]any{"access_token": r.URL.Query().Get("access_token") + "-new", "expires_in": 5184000})
	case r.Method == http.MethodGet && path == "me":
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"error": map[string]any{"message": "Invalid OAuth access token", "code": 190}})
			return
		}
		writeJSON(w, map[string]any{"id": "1", "user_id": "ig-1", "username": "cats_daily"})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/media"):
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		g.mu.Lock()
		g.containers = append(g.containers, payload)
		g.mu.Unlock()
		writeJSON(w, map[string]any{"id": "c1"})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/media_publish"):
		g.published.Add(1)
		if g.onPublish != nil {
			g.onPublish()
		}
		writeJSON(w, map[string]any{"id": "m1"})
	case r.Method == http.MethodGet && path == "c1":
		n := int(g.polls.Add(1))
		if g.onPoll != nil {
			g.onPoll()
		}
		status := g.statuses[len(g.statuses)-1]
		if n <= len(g.statuses) {
			status = g.statuses[n-1]
		}
		writeJSON(w, map[string]any{"id": "c1", "status_code": status})
	case r.Method == http.MethodGet && path == "m1":
		writeJSON(w, map[string]any{"id": "m1", "permalink": "https://www.instagram.com/p/m1/"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type fakeHost struct {
	mu      sync.Mutex
	uploads map[string]string
	deleted []string
}

func (h *fakeHost) Upload(_ context.Context, key string, _ []byte, contentType string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.uploads == nil {
		h.uploads = make(map[string]string)
	}
	h.uploads[key] = contentType
	return "https://media.example.com/" + key, nil
}

func (h *fakeHost) Delete(_ context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, key)
	return nil
}

func newTestInstagram(t *testing.T, graph *fakeGraph, host MediaHost) *InstagramService {
	t.Helper()
	srv := httptest.NewServer(graph)
	t.Cleanup(srv.Close)

	ig := NewInstagramService(config.Instagram{
		GraphURL:          srv.URL,
		APIVersion:        "v21.0",
		RequestsPerMinute: 60000,
		ContainerTimeout:  time.Second,
	}, host, srv.Client(), zerolog.Nop())
	ig.pollInterval = 5 * time.Millisecond
	return ig
}

func publishRequest(sourceURI, mimeType string) PublishRequest {
	return PublishRequest{
		QueueID:     "q1",
		Media:       &models.MediaItem{ID: "m", SourceURI: sourceURI, MimeType: mimeType},
		Destination: &models.Destination{AccountID: "a", IGUserID: "ig-1", AccessToken: "tok"},
		Caption:     "hello",
	}
}

func TestInstagramService_PublishRemote(t *testing.T) {
	graph := &fakeGraph{statuses: []string{containerInProgress, containerFinished}}
	ig := newTestInstagram(t, graph, nil)

	result, err := ig.Publish(context.Background(), publishRequest("https://cdn.example.com/a.mp4", "video/mp4"))
	require.NoError(t, err)
	assert.Equal(t, "m1", result.ExternalID)
	assert.Equal(t, "https://www.instagram.com/p/m1/", result.Permalink)
	assert.Equal(t, int32(2), graph.polls.Load())

	require.Len(t, graph.containers, 1)
	assert.Equal(t, "REELS", graph.containers[0]["media_type"])
	assert.Equal(t, "https://cdn.example.com/a.mp4", graph.containers[0]["video_url"])
	assert.Equal(t, "hello", graph.containers[0]["caption"])
}

func TestInstagramService_PublishLocalUsesHost(t *testing.T) {
	graph := &fakeGraph{statuses: []string{containerFinished}}
	host := &fakeHost{}
	ig := newTestInstagram(t, graph, host)

	file := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(file, pngHeader, 0o644))

	_, err := ig.Publish(context.Background(), publishRequest(file, "image/png"))
	require.NoError(t, err)

	require.Len(t, host.uploads, 1)
	var key string
	for k, contentType := range host.uploads {
		key = k
		assert.Equal(t, "image/png", contentType)
	}
	assert.True(t, strings.HasPrefix(key, "media/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Equal(t, []string{key}, host.deleted, "hosted copy is removed after publishing")
	assert.Equal(t, "https://media.example.com/"+key, graph.containers[0]["image_url"])
}

func TestInstagramService_PublishLocalWithoutHost(t *testing.T) {
	ig := newTestInstagram(t, &fakeGraph{statuses: []string{containerFinished}}, nil)

	_, err := ig.Publish(context.Background(), publishRequest("/tmp/a.png", "image/png"))
	var extErr *models.ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, models.ExternalPermanent, extErr.Kind)
}

func TestInstagramService_ContainerError(t *testing.T) {
	graph := &fakeGraph{statuses: []string{containerError}}
	ig := newTestInstagram(t, graph, nil)

	_, err := ig.Publish(context.Background(), publishRequest("https://cdn.example.com/a.jpg", "image/jpeg"))
	assert.Equal(t, ErrorClassPermanent, Classify(err))
	assert.Zero(t, graph.published.Load())
}

func TestInstagramService_ContainerTimeout(t *testing.T) {
	graph := &fakeGraph{statuses: []string{containerInProgress}}
	ig := newTestInstagram(t, graph, nil)
	ig.containerTimeout = 20 * time.Millisecond

	_, err := ig.Publish(context.Background(), publishRequest("https://cdn.example.com/a.jpg", "image/jpeg"))
	assert.Equal(t, ErrorClassTransient, Classify(err))
	assert.Zero(t, graph.published.Load())
}

func TestInstagramService_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	graph := &fakeGraph{statuses: []string{containerInProgress}, onPoll: cancel}
	ig := newTestInstagram(t, graph, nil)

	_, err := ig.Publish(ctx, publishRequest("https://cdn.example.com/a.jpg", "image/jpeg"))
	assert.True(t, errors.Is(err, models.ErrCancelled))
	assert.Equal(t, ErrorClassTransient, Classify(err))
	assert.Zero(t, graph.published.Load(), "never publishes after cancellation")
}

func TestInstagramService_CancelledDuringPublishStillSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	graph := &fakeGraph{statuses: []string{containerFinished}, onPublish: cancel}
	ig := newTestInstagram(t, graph, nil)

	result, err := ig.Publish(ctx, publishRequest("https://cdn.example.com/a.jpg", "image/jpeg"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), graph.published.Load())
	assert.Equal(t, "m1", result.ExternalID)
	assert.Equal(t, "https://www.instagram.com/p/m1/", result.Permalink)
	assert.Error(t, ctx.Err())
}

func TestInstagramService_ServerErrorIsTransient(t *testing.T) {
	graph := &fakeGraph{failWith: func(w http.ResponseWriter) bool {
		w.WriteHeader(http.StatusBadGateway)
		return true
	}}
	ig := newTestInstagram(t, graph, nil)

	_, err := ig.Publish(context.Background(), publishRequest("https://cdn.example.com/a.jpg", "image/jpeg"))
	var extErr *models.ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, models.ExternalTransient, extErr.Kind)
	assert.Equal(t, http.StatusBadGateway, extErr.StatusCode)
}

func TestInstagramService_UserInfoAndRefresh(t *testing.T) {
	ig := newTestInstagram(t, &fakeGraph{}, nil)
	ctx := context.Background()

	info, err := ig.UserInfo(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "ig-1", info.UserID)
	assert.Equal(t, "cats_daily", info.Username)

	_, err = ig.UserInfo(ctx, "expired")
	var extErr *models.ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, models.ExternalPermanent, extErr.Kind)
	assert.Equal(t, graphCodeInvalidToken, extErr.Code)

	refreshed, err := ig.RefreshToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "tok-new", refreshed.AccessToken)
	assert.Equal(t, int64(5184000), refreshed.ExpiresIn)
}

func TestClassifyGraphError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   models.ExternalErrorKind
	}{
		{"invalid token", 400, `{"error":{"message":"bad token","code":190}}`, models.ExternalPermanent},
		{"rate limited", 400, `{"error":{"message":"too many calls","code":4}}`, models.ExternalTransient},
		{"flagged transient", 400, `{"error":{"message":"try again","code":9007,"is_transient":true}}`, models.ExternalTransient},
		{"bad parameter", 400, `{"error":{"message":"invalid image","code":100}}`, models.ExternalPermanent},
		{"server fault", 500, `{"error":{"message":"unknown","code":9999}}`, models.ExternalTransient},
		{"unparsable 429", 429, `<html>`, models.ExternalTransient},
		{"unparsable 403", 403, ``, models.ExternalPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGraphError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.kind, err.Kind)
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}
