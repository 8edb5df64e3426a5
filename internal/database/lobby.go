// internal/database/lobby.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neverhq/never-service/internal/escalation"
	"github.com/neverhq/never-service/internal/lobby"
	"github.com/neverhq/never-service/internal/models"
)

const lobbyColumns = `
	id, code, host_user_id, language, max_rounds, nsfw_enabled,
	status, current_round, boldness_score, current_tone,
	escalation_history, used_prompt_ids, created_at
`

// GetLobbyByCode fetches the active lobby holding a code. Finished lobbies
// have released their code and are invisible here.
func (t *storeTx) GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + `
	FROM lobbies
	WHERE code = $1 AND status IN ('waiting', 'playing')`
	return scanLobby(t.tx.QueryRow(ctx, q, code))
}

// GetLobbyByID fetches a lobby regardless of status.
func (t *storeTx) GetLobbyByID(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1`
	return scanLobby(t.tx.QueryRow(ctx, q, id))
}

// LobbyCodeActive reports whether a code is held by a waiting or playing
// lobby.
func (t *storeTx) LobbyCodeActive(ctx context.Context, code string) (bool, error) {
	q := `SELECT 1 FROM lobbies WHERE code = $1 AND status IN ('waiting', 'playing') LIMIT 1`
	var tmp int
	err := t.tx.QueryRow(ctx, q, code).Scan(&tmp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertLobby creates a new lobby row. The partial unique index on active
// codes is the backstop for code allocation races.
func (t *storeTx) InsertLobby(ctx context.Context, l *models.Lobby) error {
	history, usedIDs, err := marshalEscalation(l)
	if err != nil {
		return err
	}
	q := `
	INSERT INTO lobbies (` + lobbyColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = t.tx.Exec(ctx, q,
		l.ID, l.Code, l.HostUserID, l.Language, l.MaxRounds, l.NSFWEnabled,
		l.Status, l.CurrentRound, l.BoldnessScore, string(l.CurrentTone),
		history, usedIDs, l.CreatedAt,
	)
	return err
}

// UpdateLobbyProgress persists the fields the round transition mutates.
func (t *storeTx) UpdateLobbyProgress(ctx context.Context, l *models.Lobby) error {
	history, usedIDs, err := marshalEscalation(l)
	if err != nil {
		return err
	}
	q := `
	UPDATE lobbies
	SET status = $2, current_round = $3, boldness_score = $4,
	    current_tone = $5, escalation_history = $6, used_prompt_ids = $7
	WHERE id = $1`
	tag, err := t.tx.Exec(ctx, q,
		l.ID, l.Status, l.CurrentRound, l.BoldnessScore,
		string(l.CurrentTone), history, usedIDs,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lobby.ErrNotFound
	}
	return nil
}

func marshalEscalation(l *models.Lobby) ([]byte, []byte, error) {
	history, err := json.Marshal(l.History)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal escalation history: %w", err)
	}
	usedIDs, err := json.Marshal(l.UsedPromptIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal used prompt ids: %w", err)
	}
	return history, usedIDs, nil
}

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	var tone string
	var history, usedIDs []byte
	err := row.Scan(
		&l.ID, &l.Code, &l.HostUserID, &l.Language, &l.MaxRounds, &l.NSFWEnabled,
		&l.Status, &l.CurrentRound, &l.BoldnessScore, &tone,
		&history, &usedIDs, &l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lobby.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.CurrentTone = escalation.Tone(tone)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &l.History); err != nil {
			return nil, fmt.Errorf("unmarshal escalation history: %w", err)
		}
	}
	if len(usedIDs) > 0 {
		if err := json.Unmarshal(usedIDs, &l.UsedPromptIDs); err != nil {
			return nil, fmt.Errorf("unmarshal used prompt ids: %w", err)
		}
	}
	return &l, nil
}
