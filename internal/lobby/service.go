// internal/lobby/service.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/neverhq/never-service/internal/escalation"
	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/models"
)

// Service is the lobby state machine. It holds no lobby state of its own;
// every operation opens its transactions against the store, so concurrent
// requests race only at the store's isolation level plus the round
// uniqueness constraint.
type Service struct {
	store    Store
	registry game.Registry
	log      *logrus.Logger

	// newCode is swapped out in tests to force collisions.
	newCode func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithCodeGenerator replaces the lobby code generator; tests use it to force
// collisions.
func WithCodeGenerator(fn func() string) Option {
	return func(s *Service) { s.newCode = fn }
}

// NewService wires the state machine to its store and the game registry.
func NewService(store Store, registry game.Registry, logger *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		log:      logger,
		newCode:  randomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JoinResult is what a successful join reports back: the lobby and the
// current round, nil while the lobby is still waiting.
type JoinResult struct {
	Lobby   *models.Lobby `json:"lobby"`
	Round   *models.Round `json:"round"`
	Started bool          `json:"started"`
}

// AnswerResult reports the state after an answer was recorded, and whether
// it advanced or finished the game.
type AnswerResult struct {
	Snapshot *Snapshot `json:"snapshot"`
	Advanced bool      `json:"advanced"`
	Finished bool      `json:"finished"`
}

// CreateLobby allocates a code and inserts a waiting lobby for the host.
// Settings are validated by the game module before anything is written.
func (s *Service) CreateLobby(ctx context.Context, hostID uuid.UUID, gameKey string, settings game.Settings) (*models.Lobby, error) {
	if gameKey == "" {
		gameKey = game.DefaultKey
	}
	mod, err := s.registry.Get(gameKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := mod.ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	lob := &models.Lobby{
		ID:            uuid.New(),
		HostUserID:    hostID,
		Language:      settings.Language,
		MaxRounds:     settings.MaxRounds,
		NSFWEnabled:   settings.NSFWEnabled,
		Status:        models.LobbyWaiting,
		CurrentTone:   escalation.ToneSafe,
		CreatedAt:     time.Now().UTC(),
		History:       []escalation.HistoryEntry{},
		UsedPromptIDs: []int64{},
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		for attempt := 0; attempt < codeAttempts; attempt++ {
			code := s.newCode()
			taken, err := tx.LobbyCodeActive(ctx, code)
			if err != nil {
				return err
			}
			if taken {
				continue
			}
			lob.Code = code
			return tx.InsertLobby(ctx, lob)
		}
		return ErrCodeExhausted
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"lobby": lob.ID, "code": lob.Code}).Info("lobby created")
	return lob, nil
}

// JoinLobby adds (or reconnects) a player, then fires the waiting → playing
// transition when at least two players are connected and no round exists.
// Round creation runs in its own transaction: losing the creation race never
// fails the join itself.
func (s *Service) JoinLobby(ctx context.Context, userID uuid.UUID, code, displayName, avatar string) (*JoinResult, error) {
	code = NormalizeCode(code)
	if code == "" || strings.TrimSpace(displayName) == "" {
		return nil, fmt.Errorf("%w: code and display name are required", ErrValidation)
	}

	var lobbyID uuid.UUID
	err := s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByCode(ctx, code)
		if err != nil {
			return err
		}
		lobbyID = lob.ID

		existing, err := tx.GetPlayer(ctx, lob.ID, userID)
		if err != nil {
			return err
		}
		if lob.Status != models.LobbyWaiting && (existing == nil || existing.Status == models.PlayerLeft) {
			return ErrGameStarted
		}

		p := &models.Player{
			ID:          uuid.New(),
			LobbyID:     lob.ID,
			UserID:      userID,
			DisplayName: strings.TrimSpace(displayName),
			Avatar:      avatar,
			Status:      models.PlayerConnected,
			IsHost:      lob.HostUserID == userID,
			JoinedAt:    time.Now().UTC(),
		}
		_, err = tx.UpsertPlayer(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	started, err := s.maybeStartFirstRound(ctx, lobbyID)
	if err != nil {
		return nil, err
	}

	res := &JoinResult{Started: started}
	err = s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByID(ctx, lobbyID)
		if err != nil {
			return err
		}
		round, err := tx.LatestRound(ctx, lob.ID)
		if err != nil {
			return err
		}
		res.Lobby, res.Round = lob, round
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// maybeStartFirstRound runs the waiting → playing transition in one atomic
// transaction: round 1, the lobby update and the prompt usage increment
// commit together or not at all. The storage uniqueness constraint on
// (lobby, round_number) is the authority; losing that race rolls this
// transaction back and is reported as a non-event.
func (s *Service) maybeStartFirstRound(ctx context.Context, lobbyID uuid.UUID) (bool, error) {
	started := false
	err := s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByID(ctx, lobbyID)
		if err != nil {
			return err
		}
		if lob.Status != models.LobbyWaiting {
			return nil
		}
		connected, err := tx.CountConnectedPlayers(ctx, lob.ID)
		if err != nil {
			return err
		}
		if connected < 2 {
			return nil
		}
		if existing, err := tx.LatestRound(ctx, lob.ID); err != nil {
			return err
		} else if existing != nil {
			// pre-check only; the insert below is the real guard
			return nil
		}

		lob.Status = models.LobbyPlaying
		lob.CurrentRound = 1
		if err := s.buildAndPersistRound(ctx, tx, lob, game.BuildInput{
			NextRoundNumber: 1,
			PlayerCount:     connected,
		}); err != nil {
			return err
		}
		started = true
		return nil
	})
	if errors.Is(err, ErrRoundExists) {
		s.log.WithField("lobby", lobbyID).Debug("lost first-round creation race, join still counts")
		return false, nil
	}
	return started, err
}

// buildAndPersistRound invokes the round builder and persists its outcome:
// the round row, the lobby's escalation fields and the prompt usage counter,
// all on the caller's transaction.
func (s *Service) buildAndPersistRound(ctx context.Context, tx Tx, lob *models.Lobby, in game.BuildInput) error {
	mod, err := s.registry.Get(game.DefaultKey)
	if err != nil {
		return err
	}
	res, err := mod.BuildRound(ctx, tx, lob, in)
	if err != nil {
		return err
	}

	round := res.Round
	round.ID = uuid.New()
	round.LobbyID = lob.ID
	round.StartedAt = time.Now().UTC()
	if err := tx.InsertRound(ctx, &round); err != nil {
		return err
	}

	lob.CurrentRound = in.NextRoundNumber
	lob.BoldnessScore = res.BoldnessScore
	lob.CurrentTone = res.Tone
	lob.History = res.History
	lob.UsedPromptIDs = res.UsedPromptIDs
	if err := tx.UpdateLobbyProgress(ctx, lob); err != nil {
		return err
	}
	if round.PromptID != nil {
		if err := tx.IncrementPromptUsage(ctx, *round.PromptID); err != nil {
			return err
		}
	}
	return nil
}

// GetLobbyState returns the projector snapshot, refusing requesters who are
// not (or no longer) members.
func (s *Service) GetLobbyState(ctx context.Context, code string, requesterID uuid.UUID) (*Snapshot, error) {
	code = NormalizeCode(code)
	var snap *Snapshot
	err := s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByCode(ctx, code)
		if err != nil {
			return err
		}
		p, err := tx.GetPlayer(ctx, lob.ID, requesterID)
		if err != nil {
			return err
		}
		if p == nil || p.Status == models.PlayerLeft {
			return ErrForbidden
		}
		snap, err = projectState(ctx, tx, lob)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// SubmitAnswer records one player's HAVE/HAVE_NOT for the current round and,
// once every active player has answered, advances the game: the next round
// is built, or the lobby finishes after its final round. The advance runs in
// its own transaction; two racing submitters are disarmed by the round
// uniqueness constraint the same way racing joins are.
func (s *Service) SubmitAnswer(ctx context.Context, userID uuid.UUID, code string, value bool) (*AnswerResult, error) {
	code = NormalizeCode(code)
	var lobbyID uuid.UUID
	err := s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByCode(ctx, code)
		if err != nil {
			return err
		}
		lobbyID = lob.ID
		if lob.Status != models.LobbyPlaying {
			return fmt.Errorf("%w: lobby is not playing", ErrValidation)
		}
		p, err := tx.GetPlayer(ctx, lob.ID, userID)
		if err != nil {
			return err
		}
		if p == nil || p.Status == models.PlayerLeft {
			return ErrForbidden
		}
		round, err := tx.LatestRound(ctx, lob.ID)
		if err != nil {
			return err
		}
		mod, err := s.registry.Get(game.DefaultKey)
		if err != nil {
			return err
		}
		if err := mod.ApplyAnswer(round, userID, value); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return tx.UpsertAnswer(ctx, &models.Answer{
			RoundID:    round.ID,
			UserID:     userID,
			Value:      value,
			AnsweredAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	advanced, finished, err := s.maybeAdvance(ctx, lobbyID)
	if err != nil {
		return nil, err
	}

	res := &AnswerResult{Advanced: advanced, Finished: finished}
	err = s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByID(ctx, lobbyID)
		if err != nil {
			return err
		}
		res.Snapshot, err = projectState(ctx, tx, lob)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// maybeAdvance moves the lobby forward when the current round is fully
// answered: builds round N+1, or finishes the game once max_rounds is
// reached. Runs atomically; a lost round-insert race is swallowed.
func (s *Service) maybeAdvance(ctx context.Context, lobbyID uuid.UUID) (advanced, finished bool, err error) {
	err = s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByID(ctx, lobbyID)
		if err != nil {
			return err
		}
		if lob.Status != models.LobbyPlaying {
			return nil
		}
		round, err := tx.LatestRound(ctx, lob.ID)
		if err != nil {
			return err
		}
		players, err := tx.Players(ctx, lob.ID)
		if err != nil {
			return err
		}
		var answers []models.Answer
		if round != nil {
			if answers, err = tx.RoundAnswers(ctx, round.ID); err != nil {
				return err
			}
		}
		mod, err := s.registry.Get(game.DefaultKey)
		if err != nil {
			return err
		}
		if !mod.CanAdvance(round, players, answers) {
			return nil
		}

		ratio := haveRatio(round, answers)
		if lob.CurrentRound >= lob.MaxRounds {
			lob.Status = models.LobbyFinished
			backfillHaveRatio(lob, ratio)
			if err := tx.UpdateLobbyProgress(ctx, lob); err != nil {
				return err
			}
			finished = true
			return nil
		}

		active := 0
		for _, p := range players {
			if p.Status != models.PlayerLeft {
				active++
			}
		}
		prevIntensity := round.Intensity
		if err := s.buildAndPersistRound(ctx, tx, lob, game.BuildInput{
			NextRoundNumber: lob.CurrentRound + 1,
			PlayerCount:     active,
			PrevIntensity:   &prevIntensity,
			PrevHaveRatio:   &ratio,
		}); err != nil {
			return err
		}
		advanced = true
		return nil
	})
	if errors.Is(err, ErrRoundExists) {
		s.log.WithField("lobby", lobbyID).Debug("lost round advance race")
		return false, false, nil
	}
	return advanced, finished, err
}

// MarkConnected flips a member to connected for a realtime join and returns
// the snapshot to push, all in one consistent read-write transaction.
func (s *Service) MarkConnected(ctx context.Context, code string, userID uuid.UUID) (*Snapshot, error) {
	code = NormalizeCode(code)
	var snap *Snapshot
	err := s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByCode(ctx, code)
		if err != nil {
			return err
		}
		p, err := tx.GetPlayer(ctx, lob.ID, userID)
		if err != nil {
			return err
		}
		if p == nil || p.Status == models.PlayerLeft {
			return ErrForbidden
		}
		if err := tx.SetPlayerStatus(ctx, lob.ID, userID, models.PlayerConnected); err != nil {
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

// DisconnectUser reconciles a dropped realtime connection: every lobby where
// the user is marked connected flips to disconnected. Returns the affected
// lobby codes for room broadcasts.
func (s *Service) DisconnectUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var codes []string
	err := s.store.InTx(ctx, func(tx Tx) error {
		lobbies, err := tx.ConnectedLobbies(ctx, userID)
		if err != nil {
			return err
		}
		for _, lob := range lobbies {
			if err := tx.SetPlayerStatus(ctx, lob.ID, userID, models.PlayerDisconnected); err != nil {
				return err
			}
			codes = append(codes, lob.Code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// LeaveLobby marks the membership as left. Left players no longer count for
// advancement and cannot rejoin a started game.
func (s *Service) LeaveLobby(ctx context.Context, userID uuid.UUID, code string) error {
	code = NormalizeCode(code)
	return s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByCode(ctx, code)
		if err != nil {
			return err
		}
		p, err := tx.GetPlayer(ctx, lob.ID, userID)
		if err != nil {
			return err
		}
		if p == nil || p.Status == models.PlayerLeft {
			return ErrForbidden
		}
		return tx.SetPlayerStatus(ctx, lob.ID, userID, models.PlayerLeft)
	})
}

// ResolveCode maps a lobby id to its code for clients still sending the
// legacy lobbyId field.
func (s *Service) ResolveCode(ctx context.Context, lobbyID uuid.UUID) (string, error) {
	var code string
	err := s.store.InTx(ctx, func(tx Tx) error {
		lob, err := tx.GetLobbyByID(ctx, lobbyID)
		if err != nil {
			return err
		}
		code = lob.Code
		return nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// NormalizeCode upper-cases and trims a client-supplied lobby code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// haveRatio is the fraction of the round's player snapshot that answered
// HAVE. Falls back to the answered count when the snapshot is zero.
func haveRatio(round *models.Round, answers []models.Answer) float64 {
	total := 0
	if round != nil {
		total = round.TotalPlayers
	}
	if total == 0 {
		total = len(answers)
	}
	if total == 0 {
		return 0
	}
	have := 0
	for _, a := range answers {
		if a.Value {
			have++
		}
	}
	return float64(have) / float64(total)
}

// backfillHaveRatio records the final round's outcome on the last history
// entry; there is no later build to do it.
func backfillHaveRatio(lob *models.Lobby, ratio float64) {
	if len(lob.History) == 0 {
		return
	}
	last := &lob.History[len(lob.History)-1]
	if last.HaveRatio == nil {
		r := ratio
		last.HaveRatio = &r
	}
}
