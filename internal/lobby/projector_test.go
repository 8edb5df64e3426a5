// internal/lobby/projector_test.go
package lobby_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neverhq/never-service/internal/models"
)

func TestProjectStateDefaultsForSilentPlayers(t *testing.T) {
	svc, _ := newTestService(t)
	host, guest := uuid.New(), uuid.New()
	lob, err := svc.CreateLobby(context.Background(), host, "", defaultSettings())
	require.NoError(t, err)
	_, err = svc.JoinLobby(context.Background(), host, lob.Code, "host", "")
	require.NoError(t, err)
	_, err = svc.JoinLobby(context.Background(), guest, lob.Code, "guest", "")
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(context.Background(), host, lob.Code, true)
	require.NoError(t, err)

	snap, err := svc.ProjectState(context.Background(), lob.Code)
	require.NoError(t, err)
	require.NotNil(t, snap.Round)

	// the answering player reads HAVE, the silent one null / false
	hostKey, guestKey := host.String(), guest.String()
	require.Contains(t, snap.Answers, hostKey)
	require.Contains(t, snap.Answers, guestKey)
	require.NotNil(t, snap.Answers[hostKey])
	assert.True(t, *snap.Answers[hostKey])
	assert.Nil(t, snap.Answers[guestKey])
	assert.True(t, snap.Answered[hostKey])
	assert.False(t, snap.Answered[guestKey])
}

func TestProjectStatePreservesJoinOrder(t *testing.T) {
	svc, _ := newTestService(t)
	host := uuid.New()
	lob, err := svc.CreateLobby(context.Background(), host, "", defaultSettings())
	require.NoError(t, err)

	users := []uuid.UUID{host, uuid.New()}
	names := []string{"first", "second"}
	for i, u := range users {
		_, err = svc.JoinLobby(context.Background(), u, lob.Code, names[i], "")
		require.NoError(t, err)
	}

	snap, err := svc.ProjectState(context.Background(), lob.Code)
	require.NoError(t, err)
	require.Len(t, snap.Players, 2)
	for i, p := range snap.Players {
		assert.Equal(t, users[i], p.UserID)
		assert.Equal(t, names[i], p.DisplayName)
	}
	assert.True(t, snap.Players[0].IsHost)
	assert.False(t, snap.Players[1].IsHost)
}

func TestProjectStateBeforeFirstRound(t *testing.T) {
	svc, _ := newTestService(t)
	host := uuid.New()
	lob, err := svc.CreateLobby(context.Background(), host, "", defaultSettings())
	require.NoError(t, err)
	_, err = svc.JoinLobby(context.Background(), host, lob.Code, "host", "")
	require.NoError(t, err)

	snap, err := svc.ProjectState(context.Background(), lob.Code)
	require.NoError(t, err)
	assert.Nil(t, snap.Round)
	assert.Equal(t, models.LobbyWaiting, snap.Lobby.Status)
	require.Contains(t, snap.Answers, host.String())
	assert.Nil(t, snap.Answers[host.String()])
	assert.False(t, snap.Answered[host.String()])
}
