package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sharexp/engagement"
	"sharexp/feeds"
	"sharexp/graph"
	"sharexp/notifications"
	"sharexp/presence"
	"sharexp/storage"
	"sharexp/storage/memory"
	"sharexp/storage/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testEnv struct {
	t        *testing.T
	router   *gin.Engine
	manager  *storage.Manager
	registry *presence.Registry
}

func newTestEnv(t *testing.T, users ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := storage.NewManager(memory.New(), nil, storage.Options{})
	for _, id := range users {
		_, err := manager.CreateUser(context.Background(), models.User{ID: id, Username: id})
		require.NoError(t, err)
	}
	registry := presence.NewRegistry()
	dispatcher := notifications.NewDispatcher(manager, registry, time.Second)
	s := NewServer(
		graph.NewGraph(manager, dispatcher),
		engagement.NewLedger(manager, dispatcher),
		dispatcher,
		feeds.NewAssembler(manager),
		registry,
		presence.NewHub(registry, 8),
		testSecret,
	)
	return &testEnv{t: t, router: s.Router(), manager: manager, registry: registry}
}

func (e *testEnv) token(userID string) string {
	token, err := GenerateToken(userID, []byte(testSecret), time.Hour)
	require.NoError(e.t, err)
	return token
}

func (e *testEnv) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(userID))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	return value
}

func (e *testEnv) publish(userID, text string) models.Post {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/posts", userID, gin.H{"text": text})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Post](e.t, rec)
}

func TestHealthAndMetricsNeedNoIdentity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingOrBadTokenIsRejected(t *testing.T) {
	env := newTestEnv(t, "alice")

	rec := env.do(http.MethodGet, "/api/notifications/count", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/count", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := GenerateToken("alice", []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/notifications/count", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestFollowToggleAndProfile(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")

	rec := env.do(http.MethodPost, "/api/follow/bob", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["isFollowing"])
	assert.Equal(t, float64(1), body["followerCount"])

	rec = env.do(http.MethodGet, "/api/userprofile/bob", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[map[string]any](t, rec)
	assert.Equal(t, true, profile["isFollowing"])

	rec = env.do(http.MethodGet, "/api/notifications/count", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	rec = env.do(http.MethodPost, "/api/follow/bob", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, false, body["isFollowing"])
	assert.Equal(t, float64(0), body["followerCount"])
}

func TestFollowErrors(t *testing.T) {
	env := newTestEnv(t, "alice")

	rec := env.do(http.MethodPost, "/api/follow/alice", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/follow/ghost", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLikeUnlikeAndStatus(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	post := env.publish("alice", "hello")

	rec := env.do(http.MethodPost, "/api/posts/"+post.ID+"/like", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, []any{"bob"}, body["likes"])

	rec = env.do(http.MethodPost, "/api/posts/"+post.ID+"/like", "bob", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/api/posts/"+post.ID+"/like-status", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[engagement.LikeStatus](t, rec)
	assert.Equal(t, engagement.LikeStatus{IsLiked: true, LikeCount: 1}, status)

	rec = env.do(http.MethodGet, "/api/notifications/unread", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = env.do(http.MethodDelete, "/api/posts/"+post.ID+"/like", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"])

	rec = env.do(http.MethodGet, "/api/notifications/all", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))

	rec = env.do(http.MethodDelete, "/api/posts/"+post.ID+"/like", "bob", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/api/posts/missing/like", "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentAndActions(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	post := env.publish("alice", "hello")

	rec := env.do(http.MethodPost, "/api/posts/"+post.ID+"/comments", "bob", gin.H{"text": "  nice  "})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["count"])
	comment := body["comment"].(map[string]any)
	assert.Equal(t, "nice", comment["text"])
	assert.Equal(t, "bob", comment["username"])

	rec = env.do(http.MethodPost, "/api/posts/"+post.ID+"/comments", "bob", gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/posts/"+post.ID+"/actions", "bob", gin.H{"action": "like"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["count"])

	rec = env.do(http.MethodPost, "/api/posts/"+post.ID+"/actions", "bob", gin.H{"action": "comment", "commentText": "again"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["count"])

	rec = env.do(http.MethodPost, "/api/posts/"+post.ID+"/actions", "bob", gin.H{"action": "share"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/notifications/count", "alice", nil)
	assert.Equal(t, float64(3), decode[map[string]any](t, rec)["count"])
}

func TestMarkAllRead(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	post := env.publish("alice", "hello")
	for _, text := range []string{"one", "two"} {
		rec := env.do(http.MethodPost, "/api/posts/"+post.ID+"/comments", "bob", gin.H{"text": text})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(http.MethodPatch, "/api/notifications/mark-read", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), body["modifiedCount"])
	assert.Equal(t, float64(2), body["previousUnreadCount"])

	rec = env.do(http.MethodGet, "/api/notifications/count", "alice", nil)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["count"])

	rec = env.do(http.MethodGet, "/api/notifications/all", "alice", nil)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)
}

func TestPostLifecycle(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")

	rec := env.do(http.MethodPost, "/api/posts", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	post := env.publish("alice", "first")

	rec = env.do(http.MethodGet, "/api/posts/user/alice", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	posts := decode[[]feeds.FeedPost](t, rec)
	require.Len(t, posts, 1)
	assert.Equal(t, post.ID, posts[0].ID)

	rec = env.do(http.MethodDelete, "/api/posts/"+post.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/api/posts/"+post.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodDelete, "/api/posts/"+post.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFollowingFeedPagination(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/follow/bob", "alice", nil).Code)
	for _, text := range []string{"one", "two", "three"} {
		env.publish("bob", text)
	}

	rec := env.do(http.MethodGet, "/api/following?limit=2", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[feeds.Response](t, rec)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, "three", page.Posts[0].Text)
	assert.Equal(t, "two", page.Posts[1].Text)
	require.NotEqual(t, feeds.CursorEOF, page.Cursor)

	rec = env.do(http.MethodGet, "/api/following?limit=2&cursor="+page.Cursor, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[feeds.Response](t, rec)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "one", page.Posts[0].Text)

	rec = env.do(http.MethodGet, "/api/following?limit=abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebsocketReceivesLiveNotification(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	post := env.publish("alice", "hello")

	server := httptest.NewServer(env.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + env.token("alice")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(presence.ChannelRequest{Action: presence.ActionJoin, Channel: presence.Channel("alice")}))
	var joined presence.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&joined))
	require.Equal(t, presence.MessageJoined, joined.Type)
	require.True(t, env.registry.IsOnline("alice"))

	rec := env.do(http.MethodPost, "/api/posts/"+post.ID+"/like", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var live presence.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, notifications.LiveMessageType, live.Type)

	rec = env.do(http.MethodGet, "/api/notifications/all", "alice", nil)
	assert.Empty(t, decode[[]map[string]any](t, rec))
}
