// internal/lobby/errors.go
package lobby

import "errors"

// Failure taxonomy for lobby operations. Handlers map these to transport
// statuses; everything else is treated as a store failure.
var (
	// ErrNotFound: no active lobby matches the given code or id.
	ErrNotFound = errors.New("lobby not found")

	// ErrForbidden: the user is authenticated but not a member of the lobby.
	ErrForbidden = errors.New("not a member of this lobby")

	// ErrGameStarted: a non-member tried to join after the lobby left waiting.
	ErrGameStarted = errors.New("game already started")

	// ErrCodeExhausted: all code generation attempts collided with active
	// lobbies. A transient capacity signal; callers should not retry it away.
	ErrCodeExhausted = errors.New("could not allocate lobby code")

	// ErrRoundExists is returned by Tx.InsertRound when the storage-level
	// uniqueness constraint on (lobby, round_number) rejects the insert. The
	// constraint is the contract; the application pre-check is only an
	// optimization.
	ErrRoundExists = errors.New("round already exists for this lobby")

	// ErrValidation: malformed input, rejected before any mutation.
	ErrValidation = errors.New("invalid request")
)
