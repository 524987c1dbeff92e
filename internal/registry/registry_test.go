package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/arena/internal/games/tictactoe"
	"github.com/XavierBriggs/fortuna/services/arena/internal/registry"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
)

func TestNew_BuiltinTitles(t *testing.T) {
	r := registry.New()
	assert.Equal(t, []string{"tictactoe", "tug"}, r.GameTypes())

	g, err := r.New("tug")
	require.NoError(t, err)
	assert.Equal(t, "tug", g.Info().GameType)

	infos := r.Infos()
	require.Len(t, infos, 2)
	assert.True(t, infos[0].TurnBased)
	assert.False(t, infos[1].TurnBased)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := registry.New().New("chess")
	assert.ErrorIs(t, err, registry.ErrUnknownGameType)
}

func TestNew_MisregisteredFactory(t *testing.T) {
	r := registry.Empty()
	r.Register("checkers", tictactoe.New)

	_, err := r.New("checkers")
	var mismatch *contracts.GameTypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
}
