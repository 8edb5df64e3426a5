// internal/database/player.go
package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neverhq/never-service/internal/lobby"
	"github.com/neverhq/never-service/internal/models"
)

const playerColumns = `id, lobby_id, user_id, display_name, avatar, status, is_host, joined_at`

// UpsertPlayer inserts a membership or, when the (lobby, user) pair already
// exists, refreshes its status, display name and avatar. The original
// joined_at is kept so display order never reshuffles.
func (t *storeTx) UpsertPlayer(ctx context.Context, p *models.Player) (*models.Player, error) {
	q := `
	INSERT INTO players (` + playerColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (lobby_id, user_id) DO UPDATE
	SET status = EXCLUDED.status,
	    display_name = EXCLUDED.display_name,
	    avatar = EXCLUDED.avatar
	RETURNING ` + playerColumns
	return scanPlayer(t.tx.QueryRow(ctx, q,
		p.ID, p.LobbyID, p.UserID, p.DisplayName, p.Avatar, p.Status, p.IsHost, p.JoinedAt,
	))
}

// Players lists a lobby's memberships in join order.
func (t *storeTx) Players(ctx context.Context, lobbyID uuid.UUID) ([]models.Player, error) {
	q := `SELECT ` + playerColumns + ` FROM players WHERE lobby_id = $1 ORDER BY joined_at ASC`
	rows, err := t.tx.Query(ctx, q, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.LobbyID, &p.UserID, &p.DisplayName, &p.Avatar, &p.Status, &p.IsHost, &p.JoinedAt); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// GetPlayer fetches one membership, nil when the user never joined.
func (t *storeTx) GetPlayer(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Player, error) {
	q := `SELECT ` + playerColumns + ` FROM players WHERE lobby_id = $1 AND user_id = $2`
	p, err := scanPlayer(t.tx.QueryRow(ctx, q, lobbyID, userID))
	if errors.Is(err, lobby.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// CountConnectedPlayers counts memberships currently marked connected.
func (t *storeTx) CountConnectedPlayers(ctx context.Context, lobbyID uuid.UUID) (int, error) {
	q := `SELECT COUNT(*) FROM players WHERE lobby_id = $1 AND status = 'connected'`
	var n int
	err := t.tx.QueryRow(ctx, q, lobbyID).Scan(&n)
	return n, err
}

// SetPlayerStatus flips a membership's status.
func (t *storeTx) SetPlayerStatus(ctx context.Context, lobbyID, userID uuid.UUID, status string) error {
	q := `UPDATE players SET status = $3 WHERE lobby_id = $1 AND user_id = $2`
	tag, err := t.tx.Exec(ctx, q, lobbyID, userID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lobby.ErrNotFound
	}
	return nil
}

// ConnectedLobbies lists active lobbies where the user is marked connected,
// for disconnect reconciliation.
func (t *storeTx) ConnectedLobbies(ctx context.Context, userID uuid.UUID) ([]models.Lobby, error) {
	q := `
	SELECT l.id FROM lobbies l
	JOIN players p ON p.lobby_id = l.id
	WHERE p.user_id = $1 AND p.status = 'connected'
	  AND l.status IN ('waiting', 'playing')`
	rows, err := t.tx.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var lobbies []models.Lobby
	for _, id := range ids {
		l, err := t.GetLobbyByID(ctx, id)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, *l)
	}
	return lobbies, nil
}

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var p models.Player
	err := row.Scan(&p.ID, &p.LobbyID, &p.UserID, &p.DisplayName, &p.Avatar, &p.Status, &p.IsHost, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lobby.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
