// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/neverhq/never-service/internal/cache"
	"github.com/neverhq/never-service/internal/database"
	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/lobby"
)

// Server is the edge shared by the HTTP handlers and the room websocket
// handler: the lobby service, the room fan-out, identity storage and the
// optional snapshot cache.
type Server struct {
	Log   *logrus.Logger
	DB    *database.Store
	Svc   *lobby.Service
	Rooms *RoomStore
	Cache *cache.Snapshots
}

// NewServer wires the handler edge together. Cache may be nil; the snapshot
// cache degrades to pass-through.
func NewServer(logger *logrus.Logger, db *database.Store, svc *lobby.Service, snapshots *cache.Snapshots) *Server {
	return &Server{
		Log:   logger,
		DB:    db,
		Svc:   svc,
		Rooms: NewRoomStore(),
		Cache: snapshots,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the service's error taxonomy onto HTTP statuses.
// Unmapped errors surface as a generic 500 so internals do not leak.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lobby.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, lobby.ErrNotFound):
		http.Error(w, "lobby not found", http.StatusNotFound)
	case errors.Is(err, lobby.ErrForbidden):
		http.Error(w, "not a member of this lobby", http.StatusForbidden)
	case errors.Is(err, lobby.ErrGameStarted):
		http.Error(w, "game already started", http.StatusForbidden)
	case errors.Is(err, lobby.ErrCodeExhausted):
		http.Error(w, "could not allocate a lobby code, try again", http.StatusServiceUnavailable)
	default:
		s.Log.WithError(err).Error("unhandled service error")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func lobbyStateMsg(gameKey string, snap *lobby.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"type":      "lobby:state",
		"gameKey":   gameKey,
		"lobbyCode": snap.Lobby.Code,
		"lobby":     snap.Lobby,
		"players":   snap.Players,
	}
}

func roundStateMsg(gameKey string, snap *lobby.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"type":      "round:state",
		"gameKey":   gameKey,
		"lobbyCode": snap.Lobby.Code,
		"round":     snap.Round,
	}
}

func answerStateMsg(gameKey string, snap *lobby.Snapshot) map[string]interface{} {
	msg := map[string]interface{}{
		"type":      "answer:state",
		"gameKey":   gameKey,
		"lobbyCode": snap.Lobby.Code,
		"lobbyId":   snap.Lobby.ID,
		"answers":   snap.Answers,
		"answered":  snap.Answered,
	}
	if snap.Round != nil {
		msg["roundId"] = snap.Round.ID
	}
	return msg
}

// broadcastSnapshot pushes the lobby/round/answer trio to a lobby's room.
// Called only after the mutating transaction committed; a missing room (no
// sockets attached) is a no-op.
func (s *Server) broadcastSnapshot(gameKey string, snap *lobby.Snapshot) {
	room := s.Rooms.Get(gameKey, snap.Lobby.Code)
	if room == nil {
		return
	}
	room.Broadcast(lobbyStateMsg(gameKey, snap))
	if snap.Round != nil {
		room.Broadcast(roundStateMsg(gameKey, snap))
	}
	room.Broadcast(answerStateMsg(gameKey, snap))
}

// invalidateSnapshot drops the cached projector snapshot after a mutation.
func (s *Server) invalidateSnapshot(r *http.Request, code string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(r.Context(), game.DefaultKey, code); err != nil {
		s.Log.WithError(err).WithField("code", code).Warn("snapshot cache invalidation failed")
	}
}
