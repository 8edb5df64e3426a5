// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/lobby"
)

// roomJoinPayload is the inbound join request. Clients may address the lobby
// by code directly or, on the legacy path, by lobby id.
type roomJoinPayload struct {
	GameKey   string `json:"gameKey"`
	LobbyCode string `json:"lobbyCode"`
	Code      string `json:"code"`
	LobbyID   string `json:"lobbyId"`
}

// RoomWSHandler upgrades the connection and runs the room session: one read
// pump, one write pump, disconnect reconciliation on exit.
func (s *Server) RoomWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.Log.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "room" {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}

		userID, err := EnsureGuestUser(w, r, s.DB)
		if err != nil {
			s.Log.Warnf("room ws auth failed: %v", err)
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := NewRoomConnection(userID, cancel, s.Log)
		s.Log.WithFields(logrus.Fields{"user": userID, "remote": r.RemoteAddr}).Info("room socket connected")

		go writePump(ctx, c, conn, s.Log)
		s.readPump(ctx, c, conn)

		s.handleDisconnect(conn)
		cancel()
	}
}

// readPump consumes inbound frames until the socket or context dies.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *RoomConnection) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.Log.WithField("user", conn.UserID).Info("room socket closed")
			} else if !strings.Contains(err.Error(), "context canceled") {
				s.Log.WithField("user", conn.UserID).Warnf("room socket read error: %v", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]json.RawMessage
		if err := json.Unmarshal(msg, &packet); err != nil {
			// tolerate noisy clients, never tear down the socket
			s.Log.WithField("user", conn.UserID).Debug("dropping non-json room message")
			continue
		}
		s.handleRoomMessage(ctx, conn, msg, packet)
	}
}

// handleRoomMessage dispatches one decoded frame. Unknown types and malformed
// payloads are dropped without a reply.
func (s *Server) handleRoomMessage(ctx context.Context, conn *RoomConnection, raw []byte, packet map[string]json.RawMessage) {
	var msgType string
	if rawType, ok := packet["type"]; ok {
		_ = json.Unmarshal(rawType, &msgType)
	}

	switch msgType {
	case "join", "room:join":
		var payload roomJoinPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.Log.WithField("user", conn.UserID).Debug("dropping malformed join payload")
			return
		}
		s.handleRoomJoin(ctx, conn, payload)
	default:
		s.Log.WithFields(logrus.Fields{"user": conn.UserID, "msg": msgType}).Debug("dropping unknown room message")
	}
}

// handleRoomJoin resolves the target lobby, verifies membership, attaches the
// connection and pushes the snapshot trio to the joiner before announcing the
// join to the room. Every failure is a silent drop: no room join, no event.
func (s *Server) handleRoomJoin(ctx context.Context, conn *RoomConnection, payload roomJoinPayload) *Room {
	gameKey := payload.GameKey
	if gameKey == "" {
		gameKey = game.DefaultKey
	}
	if gameKey != game.DefaultKey {
		s.Log.WithFields(logrus.Fields{"user": conn.UserID, "gameKey": gameKey}).Debug("join for unknown game key dropped")
		return nil
	}

	code := s.resolveJoinCode(ctx, payload)
	if code == "" {
		s.Log.WithField("user", conn.UserID).Debug("join with unresolvable lobby dropped")
		return nil
	}

	snap, err := s.Svc.MarkConnected(ctx, code, conn.UserID)
	if err != nil {
		s.Log.WithFields(logrus.Fields{"user": conn.UserID, "code": code}).Debugf("join rejected: %v", err)
		return nil
	}

	room := s.Rooms.GetOrCreate(gameKey, code)
	room.Attach(conn)

	conn.Write(lobbyStateMsg(gameKey, snap))
	conn.Write(roundStateMsg(gameKey, snap))
	conn.Write(answerStateMsg(gameKey, snap))

	room.Broadcast(map[string]interface{}{
		"type":      "player:joined",
		"gameKey":   gameKey,
		"lobbyCode": code,
		"userId":    conn.UserID.String(),
	})
	s.Log.WithFields(logrus.Fields{"user": conn.UserID, "code": code}).Info("user joined room")
	return room
}

// resolveJoinCode picks the lobby code out of a join payload: lobbyCode wins,
// then code, then a lobbyId lookup for legacy clients. Empty means
// unresolvable.
func (s *Server) resolveJoinCode(ctx context.Context, payload roomJoinPayload) string {
	if payload.LobbyCode != "" {
		return lobby.NormalizeCode(payload.LobbyCode)
	}
	if payload.Code != "" {
		return lobby.NormalizeCode(payload.Code)
	}
	if payload.LobbyID != "" {
		lobbyID, err := uuid.Parse(payload.LobbyID)
		if err != nil {
			return ""
		}
		code, err := s.Svc.ResolveCode(ctx, lobbyID)
		if err != nil {
			return ""
		}
		return code
	}
	return ""
}

// handleDisconnect runs after the read pump exits: every lobby where this
// user was connected flips to disconnected, and each affected room hears
// player:left. Rooms the user was attached to release the connection.
func (s *Server) handleDisconnect(conn *RoomConnection) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	codes, err := s.Svc.DisconnectUser(ctx, conn.UserID)
	if err != nil {
		s.Log.WithField("user", conn.UserID).Warnf("disconnect reconciliation failed: %v", err)
	}
	s.Rooms.ReleaseAll(conn)
	for _, code := range codes {
		room := s.Rooms.Get(game.DefaultKey, code)
		if room == nil {
			continue
		}
		room.Broadcast(map[string]interface{}{
			"type":      "player:left",
			"gameKey":   game.DefaultKey,
			"lobbyCode": code,
			"userId":    conn.UserID.String(),
		})
	}
}

// writePump drains the connection's mailbox onto the socket and keeps the
// connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *RoomConnection, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.WithField("user", conn.UserID).Warnf("marshal outbound message: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithField("user", conn.UserID).Warnf("room socket write failed: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithField("user", conn.UserID).Warnf("room socket ping failed: %v", err)
				return
			}
		}
	}
}
