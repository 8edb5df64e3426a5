// internal/database/prompt.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/neverhq/never-service/internal/escalation"
	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/models"
)

const promptColumns = `id, text, intensity, tone, nsfw, language, usage_count`

// PromptCandidates implements game.PromptPool over the transaction, so the
// round builder reads the pool at the same isolation as its round insert.
func (t *storeTx) PromptCandidates(ctx context.Context, f game.PromptFilter) ([]models.Prompt, error) {
	q := `SELECT ` + promptColumns + `
	FROM prompts
	WHERE language = $1 AND (nsfw = false OR $2)`
	args := []interface{}{f.Language, f.AllowNSFW}

	if f.MinIntensity != 0 {
		args = append(args, f.MinIntensity)
		q += fmt.Sprintf(" AND intensity >= $%d", len(args))
	}
	if f.MaxIntensity != 0 {
		args = append(args, f.MaxIntensity)
		q += fmt.Sprintf(" AND intensity <= $%d", len(args))
	}
	if len(f.ExcludeIDs) > 0 {
		args = append(args, f.ExcludeIDs)
		q += fmt.Sprintf(" AND NOT (id = ANY($%d))", len(args))
	}
	q += " ORDER BY id ASC"

	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

// LeastRecentlyUsedPrompt returns the reuse fallback: lowest usage count,
// ties broken by lowest id. Nil when the pool has no eligible rows at all.
func (t *storeTx) LeastRecentlyUsedPrompt(ctx context.Context, language string, allowNSFW bool) (*models.Prompt, error) {
	q := `SELECT ` + promptColumns + `
	FROM prompts
	WHERE language = $1 AND (nsfw = false OR $2)
	ORDER BY usage_count ASC, id ASC
	LIMIT 1`
	p, err := scanPrompt(t.tx.QueryRow(ctx, q, language, allowNSFW))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// IncrementPromptUsage bumps the usage counter of a selected prompt.
func (t *storeTx) IncrementPromptUsage(ctx context.Context, promptID int64) error {
	q := `UPDATE prompts SET usage_count = usage_count + 1 WHERE id = $1`
	_, err := t.tx.Exec(ctx, q, promptID)
	return err
}

func scanPrompt(row pgx.Row) (*models.Prompt, error) {
	var p models.Prompt
	var tone string
	if err := row.Scan(&p.ID, &p.Text, &p.Intensity, &tone, &p.NSFW, &p.Language, &p.UsageCount); err != nil {
		return nil, err
	}
	p.Tone = escalation.Tone(tone)
	return &p, nil
}
