// internal/database/round.go
package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/neverhq/never-service/internal/escalation"
	"github.com/neverhq/never-service/internal/lobby"
	"github.com/neverhq/never-service/internal/models"
)

const roundColumns = `
	id, lobby_id, round_number, prompt, prompt_id, tone, status,
	intensity, total_players, fallback_used, started_at
`

// LatestRound fetches the highest-numbered round of a lobby, nil when the
// lobby has none yet.
func (t *storeTx) LatestRound(ctx context.Context, lobbyID uuid.UUID) (*models.Round, error) {
	q := `SELECT ` + roundColumns + `
	FROM rounds WHERE lobby_id = $1
	ORDER BY round_number DESC LIMIT 1`

	var r models.Round
	var tone string
	err := t.tx.QueryRow(ctx, q, lobbyID).Scan(
		&r.ID, &r.LobbyID, &r.RoundNumber, &r.Prompt, &r.PromptID, &tone, &r.Status,
		&r.Intensity, &r.TotalPlayers, &r.FallbackUsed, &r.StartedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Tone = escalation.Tone(tone)
	return &r, nil
}

// InsertRound creates a round row. The unique constraint on
// (lobby_id, round_number) is the authoritative guard against concurrent
// creation; a violation surfaces as lobby.ErrRoundExists so the caller can
// roll back and concede the race.
func (t *storeTx) InsertRound(ctx context.Context, r *models.Round) error {
	q := `
	INSERT INTO rounds (` + roundColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := t.tx.Exec(ctx, q,
		r.ID, r.LobbyID, r.RoundNumber, r.Prompt, r.PromptID, string(r.Tone), r.Status,
		r.Intensity, r.TotalPlayers, r.FallbackUsed, r.StartedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return lobby.ErrRoundExists
	}
	return err
}

// RoundAnswers lists every answer recorded for a round.
func (t *storeTx) RoundAnswers(ctx context.Context, roundID uuid.UUID) ([]models.Answer, error) {
	q := `SELECT round_id, user_id, value, answered_at FROM answers WHERE round_id = $1 ORDER BY answered_at ASC`
	rows, err := t.tx.Query(ctx, q, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.RoundID, &a.UserID, &a.Value, &a.AnsweredAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// UpsertAnswer records a player's answer, overwriting an earlier one for the
// same round.
func (t *storeTx) UpsertAnswer(ctx context.Context, a *models.Answer) error {
	q := `
	INSERT INTO answers (round_id, user_id, value, answered_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (round_id, user_id) DO UPDATE
	SET value = EXCLUDED.value, answered_at = EXCLUDED.answered_at`
	_, err := t.tx.Exec(ctx, q, a.RoundID, a.UserID, a.Value, a.AnsweredAt)
	return err
}
