package tug_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/arena/internal/games/tug"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

var pull = contracts.Action{Type: tug.ActionPull}

func newGame(t *testing.T) contracts.Game {
	t.Helper()
	g := tug.New()
	require.NoError(t, g.Initialize([]string{"left", "right"}, 99))
	return g
}

func state(g contracts.Game) tug.State {
	return g.State().(tug.State)
}

func TestInfo(t *testing.T) {
	info := tug.New().Info()
	assert.Equal(t, tug.GameType, info.GameType)
	assert.False(t, info.TurnBased)
	assert.Equal(t, tug.TickRate, info.TickRate)
	assert.Equal(t, 2, info.MaxPlayers)
}

func TestPullMovesRopeOnTick(t *testing.T) {
	g := newGame(t)

	res := g.ApplyAction("right", pull)
	require.True(t, res.Success, res.Error)
	events := g.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "pull", events[0].Type)
	assert.Equal(t, 0, state(g).Position, "pulls resolve on the next tick")

	tr := g.Tick(100 * time.Millisecond)
	assert.True(t, tr.StateChanged)
	assert.Equal(t, 1, state(g).Position)
	require.Len(t, tr.Events, 1)
	assert.Equal(t, "rope_moved", tr.Events[0].Type)
	assert.Equal(t, int64(1), tr.Events[0].Tick)

	idle := g.Tick(100 * time.Millisecond)
	assert.False(t, idle.StateChanged)
}

func TestStaminaLimitsPulls(t *testing.T) {
	g := newGame(t)

	stamina := state(g).Stamina["left"]
	for i := 0; i < stamina; i++ {
		require.True(t, g.ApplyAction("left", pull).Success)
	}
	assert.False(t, g.ValidateAction("left", pull))
	assert.False(t, g.ApplyAction("left", pull).Success)
}

func TestStateForPlayer_RedactsOpponent(t *testing.T) {
	g := newGame(t)
	require.True(t, g.ApplyAction("right", pull).Success)

	view := g.StateForPlayer("left").(tug.State)
	assert.Equal(t, tug.Hidden, view.Stamina["right"])
	assert.Equal(t, tug.Hidden, view.Pending["right"])
	assert.NotEqual(t, tug.Hidden, view.Stamina["left"])

	full := state(g)
	assert.Equal(t, 1, full.Pending["right"], "redaction must not touch shared state")
	assert.NotEqual(t, tug.Hidden, full.Stamina["right"])
}

func TestVictoryOnThreshold(t *testing.T) {
	g := newGame(t)

	for !g.IsTerminal() {
		if g.ValidateAction("left", pull) {
			require.True(t, g.ApplyAction("left", pull).Success)
		}
		g.DrainEvents()
		g.Tick(100 * time.Millisecond)
		require.Less(t, g.(interface{ CurrentTick() int64 }).CurrentTick(), int64(600))
	}

	result, err := g.Result()
	require.NoError(t, err)
	require.NotNil(t, result.Winner)
	assert.Equal(t, "left", *result.Winner)
	assert.Equal(t, contracts.EndVictory, result.EndCondition)
	assert.Equal(t, state(g).Pulls["left"], result.Scores["left"])
}

func TestTimeoutDraw(t *testing.T) {
	g := newGame(t)

	var last contracts.TickResult
	for !g.IsTerminal() {
		last = g.Tick(100 * time.Millisecond)
	}

	result, err := g.Result()
	require.NoError(t, err)
	assert.Nil(t, result.Winner)
	assert.Equal(t, contracts.EndDraw, result.EndCondition)
	assert.Equal(t, int64(600), result.FinalTick)

	var types []string
	for _, ev := range last.Events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"timeout"}, types)
}

func TestForfeit(t *testing.T) {
	g := newGame(t)
	require.True(t, g.ApplyAction("left", contracts.Action{Type: tug.ActionForfeit}).Success)

	result, err := g.Result()
	require.NoError(t, err)
	assert.Equal(t, contracts.EndForfeit, result.EndCondition)
	assert.Equal(t, "right", *result.Winner)

	events := g.DrainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventTypeVictory, events[1].Type)
}

func TestUndrainedEventsDropAtNextTick(t *testing.T) {
	g := newGame(t)
	require.True(t, g.ApplyAction("left", pull).Success)

	g.Tick(100 * time.Millisecond)
	for _, ev := range g.DrainEvents() {
		assert.NotEqual(t, "pull", ev.Type)
	}
}

func TestDeterministicFromSeed(t *testing.T) {
	a, b := newGame(t), newGame(t)
	for i := 0; i < 20; i++ {
		for _, g := range []contracts.Game{a, b} {
			if i%3 == 0 && g.ValidateAction("right", pull) {
				g.ApplyAction("right", pull)
			}
			g.Tick(100 * time.Millisecond)
		}
	}

	sa, err := a.Serialize()
	require.NoError(t, err)
	sb, err := b.Serialize()
	require.NoError(t, err)
	assert.Equal(t, sa.Hash, sb.Hash)
	assert.Equal(t, int64(20), sa.Tick)
}

func TestDeserialize_RejectsOtherTitle(t *testing.T) {
	g := newGame(t)
	saved, err := g.Serialize()
	require.NoError(t, err)
	saved.GameType = "tictactoe"

	var mismatch *contracts.GameTypeMismatchError
	assert.ErrorAs(t, tug.New().Deserialize(saved), &mismatch)
}

func TestReplayFrame_ListsPullOnResolvingTick(t *testing.T) {
	g := newGame(t)

	require.True(t, g.ApplyAction("left", pull).Success)
	g.Tick(100 * time.Millisecond)

	frame, err := g.ReplayFrame()
	require.NoError(t, err)
	assert.Equal(t, int64(1), frame.Tick)
	require.Len(t, frame.Actions, 1)
	assert.Equal(t, "left", frame.Actions[0].PlayerID)
	assert.Equal(t, int64(1), frame.Actions[0].Tick)

	g.Tick(100 * time.Millisecond)
	frame, err = g.ReplayFrame()
	require.NoError(t, err)
	assert.Empty(t, frame.Actions)
}

func TestReset_AfterDeserializeKeepsSeed(t *testing.T) {
	g := newGame(t)
	initial, err := g.Serialize()
	require.NoError(t, err)

	require.True(t, g.ApplyAction("right", pull).Success)
	g.Tick(100 * time.Millisecond)
	saved, err := g.Serialize()
	require.NoError(t, err)
	assert.Equal(t, uint64(99), saved.Seed)

	restored := tug.New()
	require.NoError(t, restored.Deserialize(saved))
	assert.Equal(t, uint64(99), restored.(*tug.Game).Seed())

	require.NoError(t, restored.Reset())
	again, err := restored.Serialize()
	require.NoError(t, err)
	assert.Equal(t, initial.Hash, again.Hash)
	assert.Equal(t, int64(0), again.Tick)
}
