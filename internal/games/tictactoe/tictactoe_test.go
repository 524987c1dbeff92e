package tictactoe_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/arena/internal/games/tictactoe"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

func newGame(t *testing.T, seed uint64) (contracts.Game, string, string) {
	t.Helper()
	g := tictactoe.New()
	require.NoError(t, g.Initialize([]string{"alice", "bob"}, seed))

	first := g.State().(tictactoe.State).Turn
	second := "bob"
	if first == "bob" {
		second = "alice"
	}
	return g, first, second
}

func play(t *testing.T, g contracts.Game, moves []struct {
	player string
	cell   int
}) {
	t.Helper()
	for _, m := range moves {
		res := g.ApplyAction(m.player, tictactoe.PlaceAction(m.cell))
		require.True(t, res.Success, "move %+v: %s", m, res.Error)
		g.DrainEvents()
	}
}

func TestInitialize_RejectsPlayerCount(t *testing.T) {
	g := tictactoe.New()
	err := g.Initialize([]string{"solo"}, 1)
	assert.True(t, errors.Is(err, contracts.ErrPlayerCount))
}

func TestValidActions(t *testing.T) {
	g, first, second := newGame(t, 7)

	assert.Len(t, g.ValidActions(first), 10, "9 cells plus forfeit")
	assert.Equal(t, []contracts.Action{{Type: tictactoe.ActionForfeit}}, g.ValidActions(second))
	assert.Nil(t, g.ValidActions("mallory"))
}

func TestApplyAction_RejectsWithoutMutating(t *testing.T) {
	g, first, second := newGame(t, 7)

	before, err := g.Serialize()
	require.NoError(t, err)

	tests := []struct {
		name   string
		player string
		action contracts.Action
	}{
		{name: "out of turn", player: second, action: tictactoe.PlaceAction(0)},
		{name: "bad cell", player: first, action: tictactoe.PlaceAction(9)},
		{name: "unknown action", player: first, action: contracts.Action{Type: "jump"}},
		{name: "not seated", player: "mallory", action: tictactoe.PlaceAction(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.ApplyAction(tt.player, tt.action)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
		})
	}

	after, err := g.Serialize()
	require.NoError(t, err)
	assert.Equal(t, before.Hash, after.Hash)
	assert.Equal(t, before.Tick, after.Tick)
}

func TestValidateAction_AcceptsDecodedParams(t *testing.T) {
	g, first, _ := newGame(t, 3)

	// params decoded from JSON arrive as float64
	action := contracts.Action{Type: tictactoe.ActionPlace, Params: map[string]interface{}{"cell": float64(4)}}
	assert.True(t, g.ValidateAction(first, action))

	res := g.ApplyAction(first, action)
	require.True(t, res.Success)
	assert.Equal(t, first, res.NewState.(tictactoe.State).Board[4])
}

func TestVictory(t *testing.T) {
	g, first, second := newGame(t, 11)

	play(t, g, []struct {
		player string
		cell   int
	}{
		{first, 0}, {second, 3}, {first, 1}, {second, 4},
	})
	assert.False(t, g.IsTerminal())
	_, err := g.Result()
	assert.ErrorIs(t, err, contracts.ErrNotTerminal)

	res := g.ApplyAction(first, tictactoe.PlaceAction(2))
	require.True(t, res.Success)
	require.True(t, g.IsTerminal())

	var types []string
	for _, ev := range g.DrainEvents() {
		types = append(types, ev.Type)
		assert.Equal(t, int64(5), ev.Tick)
	}
	assert.Equal(t, []string{"move", models.EventTypeScore, models.EventTypeVictory}, types)

	result, err := g.Result()
	require.NoError(t, err)
	require.NotNil(t, result.Winner)
	assert.Equal(t, first, *result.Winner)
	assert.Equal(t, contracts.EndVictory, result.EndCondition)
	assert.Equal(t, int64(5), result.FinalTick)
	assert.Equal(t, 1, result.Scores[first])
	assert.Equal(t, 0, result.Scores[second])

	assert.False(t, g.ApplyAction(second, tictactoe.PlaceAction(8)).Success)
}

func TestDraw(t *testing.T) {
	g, first, second := newGame(t, 11)

	// x o x / x o o / o x x
	play(t, g, []struct {
		player string
		cell   int
	}{
		{first, 0}, {second, 1}, {first, 2},
		{second, 4}, {first, 3}, {second, 5},
		{first, 7}, {second, 6}, {first, 8},
	})

	result, err := g.Result()
	require.NoError(t, err)
	assert.Nil(t, result.Winner)
	assert.Equal(t, contracts.EndDraw, result.EndCondition)
}

func TestForfeit(t *testing.T) {
	g, _, second := newGame(t, 5)

	res := g.ApplyAction(second, contracts.Action{Type: tictactoe.ActionForfeit})
	require.True(t, res.Success)

	result, err := g.Result()
	require.NoError(t, err)
	assert.Equal(t, contracts.EndForfeit, result.EndCondition)
	require.NotNil(t, result.Winner)
	assert.NotEqual(t, second, *result.Winner)
}

func TestDeterministicReplay(t *testing.T) {
	run := func() string {
		g, first, second := newGame(t, 42)
		play(t, g, []struct {
			player string
			cell   int
		}{
			{first, 4}, {second, 0}, {first, 8},
		})
		s, err := g.Serialize()
		require.NoError(t, err)
		return s.Hash
	}

	assert.Equal(t, run(), run())
}

func TestSerialize_RoundTrip(t *testing.T) {
	g, first, second := newGame(t, 9)
	play(t, g, []struct {
		player string
		cell   int
	}{
		{first, 4}, {second, 0},
	})

	saved, err := g.Serialize()
	require.NoError(t, err)
	assert.Equal(t, tictactoe.GameType, saved.GameType)
	assert.Equal(t, int64(2), saved.Tick)

	restored := tictactoe.New()
	require.NoError(t, restored.Deserialize(saved))

	again, err := restored.Serialize()
	require.NoError(t, err)
	assert.Equal(t, saved.Hash, again.Hash)
	assert.True(t, restored.ApplyAction(first, tictactoe.PlaceAction(8)).Success)
}

func TestDeserialize_GameTypeMismatch(t *testing.T) {
	g := tictactoe.New()
	err := g.Deserialize(contracts.SerializedState{GameType: "chess", SchemaVersion: 1, State: []byte(`{}`)})

	var mismatch *contracts.GameTypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "chess", mismatch.Got)
}

func TestDeserialize_HashMismatch(t *testing.T) {
	g, _, _ := newGame(t, 9)
	saved, err := g.Serialize()
	require.NoError(t, err)
	saved.Hash = "deadbeef"

	assert.ErrorIs(t, tictactoe.New().Deserialize(saved), contracts.ErrHashMismatch)
}

func TestReset(t *testing.T) {
	g, first, _ := newGame(t, 13)
	initial, err := g.Serialize()
	require.NoError(t, err)

	require.True(t, g.ApplyAction(first, tictactoe.PlaceAction(0)).Success)
	require.NoError(t, g.Reset())

	reset, err := g.Serialize()
	require.NoError(t, err)
	assert.Equal(t, initial.Hash, reset.Hash)
	assert.Equal(t, int64(0), reset.Tick)
}

func TestReplayFrame(t *testing.T) {
	g, first, _ := newGame(t, 13)
	require.True(t, g.ApplyAction(first, tictactoe.PlaceAction(6)).Success)

	frame, err := g.ReplayFrame()
	require.NoError(t, err)
	assert.Equal(t, int64(1), frame.Tick)
	assert.False(t, frame.IsDelta)
	require.Len(t, frame.Actions, 1)
	assert.Equal(t, first, frame.Actions[0].PlayerID)
	require.Len(t, frame.Events, 1)
	assert.Equal(t, "move", frame.Events[0].Type)
}

func TestDestroy(t *testing.T) {
	g, first, _ := newGame(t, 1)
	g.Destroy()

	_, err := g.Serialize()
	assert.ErrorIs(t, err, contracts.ErrNotInitialized)
	assert.False(t, g.ApplyAction(first, tictactoe.PlaceAction(0)).Success)
}
