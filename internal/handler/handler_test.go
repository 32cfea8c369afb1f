package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loungechat/internal/app/chat"
	"loungechat/internal/app/db"
	"loungechat/internal/app/event/eventtest"
	"loungechat/internal/app/message"
	"loungechat/internal/app/moderation"
	"loungechat/internal/app/pm"
	"loungechat/internal/configs"
	"loungechat/internal/pkg/auth"
	"loungechat/internal/pkg/errs"
)

const internalSecret = "s3cret"

type tokenAuth map[string]*auth.Identity

func (a tokenAuth) ResolveIdentity(_ context.Context, credential string) (*auth.Identity, error) {
	if id, ok := a[credential]; ok {
		return id, nil
	}
	return nil, errors.New("invalid token")
}

type noFriends struct{}

func (noFriends) AreFriends(context.Context, string, string) bool { return false }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	handler  http.Handler
	orch     *chat.Orchestrator
	settings *db.MemorySettings
	rec      *eventtest.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	identities := tokenAuth{
		"mod-token":    {BattleTag: "Mod#1", Name: "Mod", Permissions: []auth.Permission{auth.PermissionModeration}},
		"player-token": {BattleTag: "Player#1", Name: "Player"},
		"alice-token":  {BattleTag: "Alice#1", Name: "Alice"},
	}

	rec := eventtest.NewRecorder()
	registry := chat.NewRegistry()
	gate := moderation.NewGate(moderation.NewMemoryRepository(), time.Minute)
	t.Cleanup(gate.Close)
	pmHistory := pm.NewMemoryHistory(pm.HistoryTTL)
	t.Cleanup(pmHistory.Close)
	blocks := pm.NewMemoryBlocks()
	settings := db.NewMemorySettings()

	broker := pm.NewBroker(registry, gate, noFriends{}, blocks, pmHistory, rec, pm.Options{})
	orch := chat.NewOrchestrator(chat.Deps{
		Registry: registry,
		History:  chat.NewHistoryStore(1000, 100),
		Gate:     gate,
		Broker:   broker,
		Sender:   rec,
		Auth:     identities,
		Settings: settings,
		Blocks:   blocks,
	}, chat.Options{DefaultRooms: []string{chat.FallbackRoom, "1 vs 1"}})

	cfg := &configs.AppConfig{Environment: "development", InternalAPISecret: internalSecret}
	deps := &AppDeps{
		Config:        cfg,
		Manager:       chat.NewManager(),
		Orchestrator:  orch,
		Gate:          gate,
		Settings:      settings,
		Authenticator: identities,
	}

	return &testServer{handler: Router(deps), orch: orch, settings: settings, rec: rec}
}

func (s *testServer) do(t *testing.T, method, path, token, body string, headers ...string) (int, envelope) {
	t.Helper()

	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *testServer) say(t *testing.T, connKey, token, text string) message.Message {
	t.Helper()
	require.NoError(t, s.orch.Connect(context.Background(), connKey, token))
	require.NoError(t, s.orch.SendMessage(context.Background(), connKey, text))

	log := s.orch.FullLog(chat.FallbackRoom)
	require.NotEmpty(t, log)
	return log[len(log)-1]
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}

func TestListRooms(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.orch.Connect(context.Background(), "c1", "alice-token"))

	code, env := s.do(t, http.MethodGet, "/api/rooms", "", "")
	require.Equal(t, http.StatusOK, code)

	var rooms []chat.RoomSummary
	require.NoError(t, json.Unmarshal(env.Data, &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, chat.RoomSummary{Name: chat.FallbackRoom, Users: 1, IsDefault: true}, rooms[0])
	assert.Equal(t, chat.RoomSummary{Name: "1 vs 1", Users: 0, IsDefault: true}, rooms[1])
}

func TestChatSettings(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.settings.SaveDefaultRoom(context.Background(), "Alice#1", "FFA"))

	code, env := s.do(t, http.MethodGet, "/api/chat-settings/Alice%231", "", "")
	require.Equal(t, http.StatusOK, code)

	var got ChatSettingsResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, ChatSettingsResponse{BattleTag: "Alice#1", DefaultChat: "FFA"}, got)
}

func TestModerationRoutes_RequirePermission(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/loungeMute", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, errs.ErrUnauthorized, env.Code)

	code, env = s.do(t, http.MethodGet, "/api/loungeMute", "player-token", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, errs.ErrForbidden, env.Code)
}

func TestLoungeMute_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	end := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)

	code, env := s.do(t, http.MethodPost, "/api/loungeMute", "mod-token",
		`{"battleTag":"Player#1","endDate":"`+end+`","kind":"shadowBan","reason":"spam"}`)
	require.Equal(t, http.StatusOK, code, env.Message)

	var stored moderation.Mute
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	assert.Equal(t, moderation.KindShadowBan, stored.Kind)
	assert.Equal(t, "Mod#1", stored.Author)

	code, env = s.do(t, http.MethodGet, "/api/loungeMute", "mod-token", "")
	require.Equal(t, http.StatusOK, code)
	var listed []moderation.Mute
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "spam", listed[0].Reason)

	code, _ = s.do(t, http.MethodDelete, "/api/loungeMute/Player%231", "mod-token", "")
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodDelete, "/api/loungeMute/Player%231", "mod-token", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, errs.ErrMuteNotFound, env.Code)
}

func TestLoungeMute_RejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	code, env := s.do(t, http.MethodPost, "/api/loungeMute", "mod-token",
		`{"battleTag":"Player#1","endDate":"`+past+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errs.ErrInvalidEndDate, env.Code)

	code, env = s.do(t, http.MethodPost, "/api/loungeMute", "mod-token", `{"battleTag":"Player#1","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errs.ErrInvalidJSONFormat, env.Code)
}

func TestChatLogAndDeleteMessage(t *testing.T) {
	s := newTestServer(t)
	msg := s.say(t, "c1", "alice-token", "hello lounge")

	code, env := s.do(t, http.MethodGet, "/api/chat/W3C%20Lounge", "mod-token", "")
	require.Equal(t, http.StatusOK, code)
	var log []message.Message
	require.NoError(t, json.Unmarshal(env.Data, &log))
	require.Len(t, log, 1)
	assert.Equal(t, "hello lounge", log[0].Text)

	code, _ = s.do(t, http.MethodDelete, "/api/deletion/messages/"+msg.ID, "mod-token", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, s.orch.FullLog(chat.FallbackRoom))

	code, env = s.do(t, http.MethodDelete, "/api/deletion/messages/"+msg.ID, "mod-token", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, errs.ErrMessageNotFound, env.Code)
}

func TestPurgeMessages(t *testing.T) {
	s := newTestServer(t)
	s.say(t, "c1", "alice-token", "one")
	require.NoError(t, s.orch.SendMessage(context.Background(), "c1", "two"))

	code, env := s.do(t, http.MethodDelete, "/api/deletion/messages/from-user/Alice%231", "mod-token", "")
	require.Equal(t, http.StatusOK, code)

	var got PurgeResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 2, got.Deleted)
	assert.Empty(t, s.orch.FullLog(chat.FallbackRoom))
}

func TestSystemBroadcast(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.orch.Connect(context.Background(), "c1", "alice-token"))
	body := `{"chatRoomId":"W3C Lounge","messageKey":"maintenance","messageParams":{"minutes":5},"isVolatile":true}`

	code, env := s.do(t, http.MethodPost, "/api/v1/system/broadcast", "", body, "X-Internal-Secret", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, errs.ErrInvalidInternalSecret, env.Code)

	code, env = s.do(t, http.MethodPost, "/api/v1/system/broadcast", "", body, "X-Internal-Secret", internalSecret)
	require.Equal(t, http.StatusOK, code, env.Message)

	var got BroadcastResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 1, got.Delivered)
	assert.Empty(t, s.orch.FullLog(chat.FallbackRoom), "volatile notices are not stored")
}

func TestClearRoom(t *testing.T) {
	s := newTestServer(t)
	s.say(t, "c1", "alice-token", "one")

	code, env := s.do(t, http.MethodDelete, "/api/chat/W3C%20Lounge", "player-token", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodDelete, "/api/chat/W3C%20Lounge", "mod-token", "")
	require.Equal(t, http.StatusOK, code)

	var got ClearRoomResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, ClearRoomResponse{Room: chat.FallbackRoom, Deleted: 1}, got)
	assert.Empty(t, s.orch.FullLog(chat.FallbackRoom))
}
