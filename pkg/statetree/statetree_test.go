package statetree_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/statetree"
)

func mustParse(t *testing.T, doc string) statetree.Value {
	t.Helper()
	v, err := statetree.Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func TestDiff_NestedReplaceAndAdd(t *testing.T) {
	oldV := mustParse(t, `{"a":1,"b":{"c":2}}`)
	newV := mustParse(t, `{"a":1,"b":{"c":3},"d":4}`)

	changes := statetree.Diff(oldV, newV)

	require.Len(t, changes, 2)
	assert.Equal(t, models.DeltaChange{
		Path:     "b.c",
		Op:       models.OpReplace,
		Value:    json.RawMessage(`3`),
		OldValue: json.RawMessage(`2`),
	}, changes[0])
	assert.Equal(t, models.DeltaChange{
		Path:  "d",
		Op:    models.OpAdd,
		Value: json.RawMessage(`4`),
	}, changes[1])
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name    string
		oldDoc  string
		newDoc  string
		wantOps []string
		wantPth []string
	}{
		{
			name:   "identical documents",
			oldDoc: `{"x":[1,2],"y":"s"}`,
			newDoc: `{"y":"s","x":[1,2]}`,
		},
		{
			name:    "removed key",
			oldDoc:  `{"a":1,"b":2}`,
			newDoc:  `{"a":1}`,
			wantOps: []string{models.OpRemove},
			wantPth: []string{"b"},
		},
		{
			name:    "kind change is a replace",
			oldDoc:  `{"a":{"b":1}}`,
			newDoc:  `{"a":5}`,
			wantOps: []string{models.OpReplace},
			wantPth: []string{"a"},
		},
		{
			name:    "array grows",
			oldDoc:  `{"l":[1]}`,
			newDoc:  `{"l":[1,2,3]}`,
			wantOps: []string{models.OpAdd, models.OpAdd},
			wantPth: []string{"l.1", "l.2"},
		},
		{
			name:    "array shrinks and changes",
			oldDoc:  `{"l":[1,2,3]}`,
			newDoc:  `{"l":[9]}`,
			wantOps: []string{models.OpReplace, models.OpRemove, models.OpRemove},
			wantPth: []string{"l.0", "l.1", "l.2"},
		},
		{
			name:    "root scalar",
			oldDoc:  `1`,
			newDoc:  `2`,
			wantOps: []string{models.OpReplace},
			wantPth: []string{""},
		},
		{
			name:   "numbers compare by value",
			oldDoc: `{"n":1}`,
			newDoc: `{"n":1.0}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := statetree.Diff(mustParse(t, tt.oldDoc), mustParse(t, tt.newDoc))

			var ops, paths []string
			for _, c := range changes {
				ops = append(ops, c.Op)
				paths = append(paths, c.Path)
			}
			assert.Equal(t, tt.wantOps, ops)
			assert.Equal(t, tt.wantPth, paths)
		})
	}
}

func TestApply_ReconstructsNewState(t *testing.T) {
	pairs := [][2]string{
		{`{"a":1,"b":{"c":2}}`, `{"a":1,"b":{"c":3},"d":4}`},
		{`{"l":[1,2,3],"m":{"k":"v"}}`, `{"l":[4],"m":{}}`},
		{`{"l":[]}`, `{"l":[{"x":1},{"y":[true,null]}]}`},
		{`{"board":[["x",""],["","o"]],"turn":"p1"}`, `{"board":[["x","x"],["","o"]],"turn":"p2"}`},
	}

	for _, pair := range pairs {
		oldV := mustParse(t, pair[0])
		newV := mustParse(t, pair[1])

		got, err := statetree.Apply(oldV, statetree.Diff(oldV, newV))
		require.NoError(t, err)
		assert.True(t, got.Equal(newV), "apply(%s) = %s, want %s", pair[0], got.Canonical(), pair[1])
		assert.Equal(t, string(mustParse(t, pair[0]).Canonical()), string(oldV.Canonical()), "base must not be modified")
	}
}

func TestCanonical_SortsKeys(t *testing.T) {
	v := mustParse(t, `{"z":1,"a":{"d":true,"b":null},"m":["q","p"]}`)
	assert.Equal(t, `{"a":{"b":null,"d":true},"m":["q","p"],"z":1}`, string(v.Canonical()))
}

func TestHash_IgnoresKeyOrder(t *testing.T) {
	a := mustParse(t, `{"x":1,"y":2}`)
	b := mustParse(t, `{"y":2,"x":1}`)
	c := mustParse(t, `{"y":2,"x":3}`)

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Len(t, a.Hash(), 64)
}

func TestFromAny_Struct(t *testing.T) {
	type state struct {
		Turn  string         `json:"turn"`
		Score map[string]int `json:"score"`
	}

	v, err := statetree.FromAny(state{Turn: "p1", Score: map[string]int{"p1": 2}})
	require.NoError(t, err)

	turn, ok := v.Field("turn")
	require.True(t, ok)
	assert.Equal(t, statetree.KindString, turn.Kind())
	assert.Equal(t, `{"score":{"p1":2},"turn":"p1"}`, string(v.Canonical()))
}

func TestParse_RejectsTrailingData(t *testing.T) {
	_, err := statetree.Parse([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}
