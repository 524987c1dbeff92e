package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/XavierBriggs/fortuna/services/arena/internal/games/tictactoe"
	"github.com/XavierBriggs/fortuna/services/arena/internal/games/tug"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
)

// ErrUnknownGameType is returned for game types nothing is registered under
var ErrUnknownGameType = errors.New("game type not found")

// Registry manages the available game titles
type Registry struct {
	mu        sync.RWMutex
	factories map[string]contracts.Factory
}

// New creates a registry with every built-in title
func New() *Registry {
	r := Empty()

	r.Register(tictactoe.GameType, tictactoe.New)
	r.Register(tug.GameType, tug.New)

	return r
}

// Empty creates a registry without any titles
func Empty() *Registry {
	return &Registry{
		factories: make(map[string]contracts.Factory),
	}
}

// Register adds a title factory, replacing any previous one for gameType
func (r *Registry) Register(gameType string, factory contracts.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[gameType] = factory
}

// New builds a fresh game of the given type
func (r *Registry) New(gameType string) (contracts.Game, error) {
	r.mu.RLock()
	factory, ok := r.factories[gameType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, gameType)
	}

	g := factory()
	if got := g.Info().GameType; got != gameType {
		// a factory registered under the wrong name is a wiring bug
		return nil, &contracts.GameTypeMismatchError{Want: gameType, Got: got}
	}
	return g, nil
}

// Infos returns the description of every registered title, sorted by type
func (r *Registry) Infos() []contracts.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]contracts.Info, 0, len(r.factories))
	for _, f := range r.factories {
		infos = append(infos, f().Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].GameType < infos[j].GameType })
	return infos
}

// GameTypes returns all registered game types, sorted
func (r *Registry) GameTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
