// internal/lobby/lobbytest/store.go
package lobbytest

// Package lobbytest provides an in-memory lobby.Store for tests. It models
// the store contracts the service leans on: serializable transactions with
// rollback, and the uniqueness constraint on (lobby, round_number).

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/neverhq/never-service/internal/escalation"
	"github.com/neverhq/never-service/internal/game"
	"github.com/neverhq/never-service/internal/lobby"
	"github.com/neverhq/never-service/internal/models"
)

type state struct {
	lobbies map[uuid.UUID]models.Lobby
	players map[uuid.UUID][]models.Player          // lobbyID -> join order
	rounds  map[uuid.UUID][]models.Round           // lobbyID -> by round number
	answers map[uuid.UUID]map[uuid.UUID]models.Answer // roundID -> userID
	prompts map[int64]models.Prompt
}

func newState() *state {
	return &state{
		lobbies: make(map[uuid.UUID]models.Lobby),
		players: make(map[uuid.UUID][]models.Player),
		rounds:  make(map[uuid.UUID][]models.Round),
		answers: make(map[uuid.UUID]map[uuid.UUID]models.Answer),
		prompts: make(map[int64]models.Prompt),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.lobbies {
		c.lobbies[k] = cloneLobby(v)
	}
	for k, v := range s.players {
		c.players[k] = append([]models.Player(nil), v...)
	}
	for k, v := range s.rounds {
		c.rounds[k] = append([]models.Round(nil), v...)
	}
	for k, v := range s.answers {
		m := make(map[uuid.UUID]models.Answer, len(v))
		for uk, uv := range v {
			m[uk] = uv
		}
		c.answers[k] = m
	}
	for k, v := range s.prompts {
		c.prompts[k] = v
	}
	return c
}

// MemStore is an in-memory lobby.Store. Transactions take a copy of the
// whole state and swap it back in on success, so a failed fn rolls back.
type MemStore struct {
	mu sync.Mutex
	st *state
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{st: newState()}
}

// SeedPrompts loads pool rows outside any transaction.
func (m *MemStore) SeedPrompts(prompts ...models.Prompt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range prompts {
		m.st.prompts[p.ID] = p
	}
}

// Lobbies returns a copy of every stored lobby, for assertions.
func (m *MemStore) Lobbies() []models.Lobby {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lobby
	for _, l := range m.st.lobbies {
		out = append(out, cloneLobby(l))
	}
	return out
}

// Rounds returns a lobby's rounds ordered by round number, for assertions.
func (m *MemStore) Rounds(lobbyID uuid.UUID) []models.Round {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.Round(nil), m.st.rounds[lobbyID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out
}

// InTx implements lobby.Store with serializable semantics: the store lock is
// held for the whole transaction.
func (m *MemStore) InTx(ctx context.Context, fn func(tx lobby.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

type memTx struct {
	st *state
}

var _ lobby.Tx = (*memTx)(nil)

func (t *memTx) GetLobbyByCode(_ context.Context, code string) (*models.Lobby, error) {
	for _, l := range t.st.lobbies {
		if l.Code == code && l.Active() {
			c := cloneLobby(l)
			return &c, nil
		}
	}
	return nil, lobby.ErrNotFound
}

func (t *memTx) GetLobbyByID(_ context.Context, id uuid.UUID) (*models.Lobby, error) {
	l, ok := t.st.lobbies[id]
	if !ok {
		return nil, lobby.ErrNotFound
	}
	c := cloneLobby(l)
	return &c, nil
}

func (t *memTx) LobbyCodeActive(_ context.Context, code string) (bool, error) {
	for _, l := range t.st.lobbies {
		if l.Code == code && l.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertLobby(_ context.Context, l *models.Lobby) error {
	for _, existing := range t.st.lobbies {
		if existing.Code == l.Code && existing.Active() {
			return fmt.Errorf("duplicate active code %q", l.Code)
		}
	}
	t.st.lobbies[l.ID] = cloneLobby(*l)
	return nil
}

func (t *memTx) UpdateLobbyProgress(_ context.Context, l *models.Lobby) error {
	stored, ok := t.st.lobbies[l.ID]
	if !ok {
		return lobby.ErrNotFound
	}
	stored.Status = l.Status
	stored.CurrentRound = l.CurrentRound
	stored.BoldnessScore = l.BoldnessScore
	stored.CurrentTone = l.CurrentTone
	stored.History = append([]escalation.HistoryEntry(nil), l.History...)
	stored.UsedPromptIDs = append([]int64(nil), l.UsedPromptIDs...)
	t.st.lobbies[l.ID] = stored
	return nil
}

func (t *memTx) UpsertPlayer(_ context.Context, p *models.Player) (*models.Player, error) {
	list := t.st.players[p.LobbyID]
	for i, existing := range list {
		if existing.UserID == p.UserID {
			existing.Status = p.Status
			existing.DisplayName = p.DisplayName
			existing.Avatar = p.Avatar
			list[i] = existing
			t.st.players[p.LobbyID] = list
			out := existing
			return &out, nil
		}
	}
	t.st.players[p.LobbyID] = append(list, *p)
	out := *p
	return &out, nil
}

func (t *memTx) Players(_ context.Context, lobbyID uuid.UUID) ([]models.Player, error) {
	return append([]models.Player(nil), t.st.players[lobbyID]...), nil
}

func (t *memTx) GetPlayer(_ context.Context, lobbyID, userID uuid.UUID) (*models.Player, error) {
	for _, p := range t.st.players[lobbyID] {
		if p.UserID == userID {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (t *memTx) CountConnectedPlayers(_ context.Context, lobbyID uuid.UUID) (int, error) {
	n := 0
	for _, p := range t.st.players[lobbyID] {
		if p.Status == models.PlayerConnected {
			n++
		}
	}
	return n, nil
}

func (t *memTx) SetPlayerStatus(_ context.Context, lobbyID, userID uuid.UUID, status string) error {
	list := t.st.players[lobbyID]
	for i := range list {
		if list[i].UserID == userID {
			list[i].Status = status
			return nil
		}
	}
	return lobby.ErrNotFound
}

func (t *memTx) ConnectedLobbies(_ context.Context, userID uuid.UUID) ([]models.Lobby, error) {
	var out []models.Lobby
	for id, list := range t.st.players {
		for _, p := range list {
			if p.UserID == userID && p.Status == models.PlayerConnected {
				if l, ok := t.st.lobbies[id]; ok && l.Active() {
					out = append(out, cloneLobby(l))
				}
			}
		}
	}
	return out, nil
}

func (t *memTx) LatestRound(_ context.Context, lobbyID uuid.UUID) (*models.Round, error) {
	rounds := t.st.rounds[lobbyID]
	if len(rounds) == 0 {
		return nil, nil
	}
	latest := rounds[0]
	for _, r := range rounds[1:] {
		if r.RoundNumber > latest.RoundNumber {
			latest = r
		}
	}
	return &latest, nil
}

func (t *memTx) InsertRound(_ context.Context, r *models.Round) error {
	for _, existing := range t.st.rounds[r.LobbyID] {
		if existing.RoundNumber == r.RoundNumber {
			return lobby.ErrRoundExists
		}
	}
	t.st.rounds[r.LobbyID] = append(t.st.rounds[r.LobbyID], *r)
	return nil
}

func (t *memTx) RoundAnswers(_ context.Context, roundID uuid.UUID) ([]models.Answer, error) {
	var out []models.Answer
	for _, a := range t.st.answers[roundID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnsweredAt.Before(out[j].AnsweredAt) })
	return out, nil
}

func (t *memTx) UpsertAnswer(_ context.Context, a *models.Answer) error {
	m, ok := t.st.answers[a.RoundID]
	if !ok {
		m = make(map[uuid.UUID]models.Answer)
		t.st.answers[a.RoundID] = m
	}
	m[a.UserID] = *a
	return nil
}

func (t *memTx) IncrementPromptUsage(_ context.Context, promptID int64) error {
	p, ok := t.st.prompts[promptID]
	if !ok {
		return fmt.Errorf("prompt %d not found", promptID)
	}
	p.UsageCount++
	t.st.prompts[promptID] = p
	return nil
}

func (t *memTx) PromptCandidates(_ context.Context, f game.PromptFilter) ([]models.Prompt, error) {
	excluded := make(map[int64]bool, len(f.ExcludeIDs))
	for _, id := range f.ExcludeIDs {
		excluded[id] = true
	}
	var out []models.Prompt
	for _, p := range t.st.prompts {
		if p.Language != f.Language || excluded[p.ID] {
			continue
		}
		if p.NSFW && !f.AllowNSFW {
			continue
		}
		if f.MinIntensity != 0 && p.Intensity < f.MinIntensity {
			continue
		}
		if f.MaxIntensity != 0 && p.Intensity > f.MaxIntensity {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) LeastRecentlyUsedPrompt(_ context.Context, language string, allowNSFW bool) (*models.Prompt, error) {
	var best *models.Prompt
	for _, p := range t.st.prompts {
		if p.Language != language || (p.NSFW && !allowNSFW) {
			continue
		}
		p := p
		if best == nil || p.UsageCount < best.UsageCount ||
			(p.UsageCount == best.UsageCount && p.ID < best.ID) {
			best = &p
		}
	}
	return best, nil
}

func cloneLobby(l models.Lobby) models.Lobby {
	l.History = append([]escalation.HistoryEntry(nil), l.History...)
	l.UsedPromptIDs = append([]int64(nil), l.UsedPromptIDs...)
	return l
}
