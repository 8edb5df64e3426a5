// internal/handlers/lobby_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neverhq/never-service/internal/auth"
	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/lobby"
	"github.com/neverhq/never-service/internal/models"
)

// authedRequest builds a request carrying a signed token for userID, so the
// guest-creation path (which needs the database) is never taken.
func authedRequest(t *testing.T, userID uuid.UUID, method, target, body string) *http.Request {
	t.Helper()
	token, err := auth.CreateJWT(userID.String())
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Cookie", "auth_token="+token)
	return req
}

func TestCreateLobbyHandler(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)
	host := uuid.New()

	req := authedRequest(t, host, "POST", "/lobby/create", `{"language":"en","maxRounds":10}`)
	w := httptest.NewRecorder()
	srv.CreateLobbyHandler().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var lob models.Lobby
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lob))
	assert.Equal(t, host, lob.HostUserID)
	assert.Len(t, lob.Code, 6)
	assert.Equal(t, models.LobbyWaiting, lob.Status)
}

func TestCreateLobbyHandlerRejectsBadSettings(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)

	req := authedRequest(t, uuid.New(), "POST", "/lobby/create", `{"language":"xx","maxRounds":10}`)
	w := httptest.NewRecorder()
	srv.CreateLobbyHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinLobbyHandlerStartsGameOnSecondJoin(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)
	host, guest := uuid.New(), uuid.New()

	lob, err := srv.Svc.CreateLobby(context.Background(), host, "", game.Settings{Language: "en", MaxRounds: 20})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.JoinLobbyHandler().ServeHTTP(w, authedRequest(t, host, "POST", "/lobby/join",
		`{"code":"`+lob.Code+`","displayName":"Host"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	srv.JoinLobbyHandler().ServeHTTP(w, authedRequest(t, guest, "POST", "/lobby/join",
		`{"code":"`+lob.Code+`","displayName":"Guest"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res lobby.JoinResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Started)
	require.NotNil(t, res.Round)
	assert.Equal(t, 1, res.Round.RoundNumber)
}

func TestJoinLobbyHandlerUnknownCode(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.JoinLobbyHandler().ServeHTTP(w, authedRequest(t, uuid.New(), "POST", "/lobby/join",
		`{"code":"ZZZZZZ","displayName":"Nobody"}`))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLobbyStateHandlerForbidsNonMembers(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)
	lob, _, _ := playingLobby(t, srv)

	w := httptest.NewRecorder()
	srv.LobbyStateHandler().ServeHTTP(w, authedRequest(t, uuid.New(), "GET", "/lobby/state?code="+lob.Code, ""))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLobbyStateHandlerReturnsSnapshot(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)
	lob, host, _ := playingLobby(t, srv)

	w := httptest.NewRecorder()
	srv.LobbyStateHandler().ServeHTTP(w, authedRequest(t, host, "GET", "/lobby/state?code="+lob.Code, ""))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap lobby.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.Players, 2)
	require.NotNil(t, snap.Round)
	assert.Len(t, snap.Answers, 2)
}

func TestSubmitAnswerHandler(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)
	lob, host, _ := playingLobby(t, srv)

	w := httptest.NewRecorder()
	srv.SubmitAnswerHandler().ServeHTTP(w, authedRequest(t, host, "POST", "/lobby/answer",
		`{"code":"`+lob.Code+`","answer":true}`))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res lobby.AnswerResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Advanced)
	require.NotNil(t, res.Snapshot)
	assert.True(t, res.Snapshot.Answered[host.String()])
}

func TestSubmitAnswerHandlerRequiresAnswerField(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)
	lob, host, _ := playingLobby(t, srv)

	w := httptest.NewRecorder()
	srv.SubmitAnswerHandler().ServeHTTP(w, authedRequest(t, host, "POST", "/lobby/answer",
		`{"code":"`+lob.Code+`"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaveLobbyHandlerBroadcastsToRoom(t *testing.T) {
	require.NoError(t, auth.Init())
	srv, _ := newTestServer(t)
	lob, host, guest := playingLobby(t, srv)

	hostConn := NewRoomConnection(host, nil, testLogger())
	srv.Rooms.GetOrCreate("never", lob.Code).Attach(hostConn)

	w := httptest.NewRecorder()
	srv.LeaveLobbyHandler().ServeHTTP(w, authedRequest(t, guest, "POST", "/lobby/leave",
		`{"code":"`+lob.Code+`"}`))

	require.Equal(t, http.StatusNoContent, w.Code)
	types := drainTypes(hostConn)
	assert.Contains(t, types, "player:left")
}
