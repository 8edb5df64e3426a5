// internal/lobby/projector.go
package lobby

import (
	"context"
	"fmt"

	"github.com/neverhq/never-service/internal/models"
)

// Snapshot is the consolidated view of one lobby: the single source of truth
// for both the synchronous state query and the realtime push. Answers is
// tri-state per user id: true HAVE, false HAVE_NOT, null not-yet-answered.
// Every known player appears in both maps.
type Snapshot struct {
	Lobby    *models.Lobby    `json:"lobby"`
	Players  []models.Player  `json:"players"`
	Round    *models.Round    `json:"round"`
	Answers  map[string]*bool `json:"answers"`
	Answered map[string]bool  `json:"answered"`
}

// ProjectState assembles a snapshot for a lobby code in one consistent read.
func (s *Service) ProjectState(ctx context.Context, code string) (*Snapshot, error) {
	var snap *Snapshot
	err := s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByCode(ctx, code)
		if err != nil {
			return err
		}
		snap, err = projectState(ctx, tx, lob)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// projectState builds the snapshot inside an already-open transaction so the
// lobby, players, round and answers can never disagree about round identity.
func projectState(ctx context.Context, tx Tx, lob *models.Lobby) (*Snapshot, error) {
	players, err := tx.Players(ctx, lob.ID)
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	round, err := tx.LatestRound(ctx, lob.ID)
	if err != nil {
		return nil, fmt.Errorf("load round: %w", err)
	}

	snap := &Snapshot{
		Lobby:    lob,
		Players:  players,
		Round:    round,
		Answers:  make(map[string]*bool, len(players)),
		Answered: make(map[string]bool, len(players)),
	}
	for _, p := range players {
		snap.Answers[p.UserID.String()] = nil
		snap.Answered[p.UserID.String()] = false
	}
	if round != nil {
		answers, err := tx.RoundAnswers(ctx, round.ID)
		if err != nil {
			return nil, fmt.Errorf("load answers: %w", err)
		}
		for _, a := range answers {
			v := a.Value
			snap.Answers[a.UserID.String()] = &v
			snap.Answered[a.UserID.String()] = true
		}
	}
	return snap, nil
}
