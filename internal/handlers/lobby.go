// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/lobby"
	"github.com/neverhq/never-service/internal/models"
)

// snapshotMember reports whether a user holds a non-left membership in the
// snapshot's player list.
func snapshotMember(snap *lobby.Snapshot, userID uuid.UUID) bool {
	for _, p := range snap.Players {
		if p.UserID == userID && p.Status != models.PlayerLeft {
			return true
		}
	}
	return false
}

type createLobbyRequest struct {
	GameKey     string `json:"gameKey"`
	Language    string `json:"language"`
	MaxRounds   int    `json:"maxRounds"`
	NSFWEnabled bool   `json:"nsfwEnabled"`
}

// CreateLobbyHandler allocates a code and creates a waiting lobby owned by
// the caller.
func (s *Server) CreateLobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := EnsureGuestUser(w, r, s.DB)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad create payload", http.StatusBadRequest)
			return
		}

		lob, err := s.Svc.CreateLobby(r.Context(), userID, req.GameKey, game.Settings{
			Language:    req.Language,
			MaxRounds:   req.MaxRounds,
			NSFWEnabled: req.NSFWEnabled,
		})
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, lob)
	}
}

type joinLobbyRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// JoinLobbyHandler joins (or rejoins) the caller into a lobby by code. When
// the join starts the game, the fresh snapshot is broadcast to the room after
// the transaction committed.
func (s *Server) JoinLobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := EnsureGuestUser(w, r, s.DB)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		var req joinLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad join payload", http.StatusBadRequest)
			return
		}

		res, err := s.Svc.JoinLobby(r.Context(), userID, req.Code, req.DisplayName, req.Avatar)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		code := lobby.NormalizeCode(req.Code)
		s.invalidateSnapshot(r, code)
		if snap, err := s.Svc.ProjectState(r.Context(), code); err == nil {
			s.broadcastSnapshot(game.DefaultKey, snap)
		} else {
			s.Log.WithError(err).WithField("code", code).Warn("post-join snapshot broadcast failed")
		}

		writeJSON(w, http.StatusOK, res)
	}
}

// LobbyStateHandler returns the projector snapshot for members, consulting
// the snapshot cache first.
func (s *Server) LobbyStateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := EnsureGuestUser(w, r, s.DB)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		code := lobby.NormalizeCode(r.URL.Query().Get("code"))
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		// On a cache hit the membership gate runs against the cached player
		// list; everything the store would tell us is already in the snapshot.
		if s.Cache != nil {
			var cached lobby.Snapshot
			if hit, err := s.Cache.Get(r.Context(), game.DefaultKey, code, &cached); err == nil && hit {
				if snapshotMember(&cached, userID) {
					writeJSON(w, http.StatusOK, &cached)
					return
				}
				http.Error(w, "not a member of this lobby", http.StatusForbidden)
				return
			}
		}

		snap, err := s.Svc.GetLobbyState(r.Context(), code, userID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if s.Cache != nil {
			if err := s.Cache.Set(r.Context(), game.DefaultKey, code, snap); err != nil {
				s.Log.WithError(err).WithField("code", code).Warn("snapshot cache write failed")
			}
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

type submitAnswerRequest struct {
	Code   string `json:"code"`
	Answer *bool  `json:"answer"`
}

// SubmitAnswerHandler records the caller's answer for the current round and
// broadcasts the resulting state. When every active player has answered, the
// service advances (or finishes) before the response is written.
func (s *Server) SubmitAnswerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := EnsureGuestUser(w, r, s.DB)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		var req submitAnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == nil {
			http.Error(w, "bad answer payload", http.StatusBadRequest)
			return
		}

		res, err := s.Svc.SubmitAnswer(r.Context(), userID, req.Code, *req.Answer)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		code := lobby.NormalizeCode(req.Code)
		s.invalidateSnapshot(r, code)
		if res.Snapshot != nil {
			s.broadcastSnapshot(game.DefaultKey, res.Snapshot)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type leaveLobbyRequest struct {
	Code string `json:"code"`
}

// LeaveLobbyHandler flips the caller's membership to left and tells the room.
func (s *Server) LeaveLobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := EnsureGuestUser(w, r, s.DB)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		var req leaveLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad leave payload", http.StatusBadRequest)
			return
		}

		if err := s.Svc.LeaveLobby(r.Context(), userID, req.Code); err != nil {
			s.writeServiceError(w, err)
			return
		}

		code := lobby.NormalizeCode(req.Code)
		s.invalidateSnapshot(r, code)
		if room := s.Rooms.Get(game.DefaultKey, code); room != nil {
			room.Broadcast(map[string]interface{}{
				"type":      "player:left",
				"gameKey":   game.DefaultKey,
				"lobbyCode": code,
				"userId":    userID.String(),
			})
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
