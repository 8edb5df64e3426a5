// internal/lobby/store.go
package lobby

import (
	"context"

	"github.com/google/uuid"

	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/models"
)

// Store opens transactions against the backing store. All shared state lives
// behind it; the service holds no in-process lobby state and no lock across
// a store call.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls
	// everything back; rollback failures are swallowed so the original error
	// always surfaces.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the per-transaction surface of the store. It embeds the prompt pool
// so round building reads prompts at the same isolation as the round insert.
type Tx interface {
	game.PromptPool

	GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error)
	GetLobbyByID(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	LobbyCodeActive(ctx context.Context, code string) (bool, error)
	InsertLobby(ctx context.Context, l *models.Lobby) error
	// UpdateLobbyProgress persists status, current round and the escalation
	// fields of a lobby.
	UpdateLobbyProgress(ctx context.Context, l *models.Lobby) error

	// UpsertPlayer is the idempotent join keyed on (lobby, user). On conflict
	// it refreshes status, display name and avatar and keeps the original
	// join time. Returns the stored row.
	UpsertPlayer(ctx context.Context, p *models.Player) (*models.Player, error)
	Players(ctx context.Context, lobbyID uuid.UUID) ([]models.Player, error)
	GetPlayer(ctx context.Context, lobbyID, userID uuid.UUID) (*models.Player, error)
	CountConnectedPlayers(ctx context.Context, lobbyID uuid.UUID) (int, error)
	SetPlayerStatus(ctx context.Context, lobbyID, userID uuid.UUID, status string) error
	// ConnectedLobbies lists every active lobby where the user's membership
	// is currently "connected"; used for disconnect reconciliation.
	ConnectedLobbies(ctx context.Context, userID uuid.UUID) ([]models.Lobby, error)

	LatestRound(ctx context.Context, lobbyID uuid.UUID) (*models.Round, error)
	// InsertRound returns ErrRoundExists when (lobby, round_number) is taken.
	InsertRound(ctx context.Context, r *models.Round) error
	RoundAnswers(ctx context.Context, roundID uuid.UUID) ([]models.Answer, error)
	UpsertAnswer(ctx context.Context, a *models.Answer) error

	IncrementPromptUsage(ctx context.Context, promptID int64) error
}
