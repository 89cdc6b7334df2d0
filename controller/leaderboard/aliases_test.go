package leaderboard

import (
	"testing"

	"github.com/kylycht/coinsengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliases_WireResolveUnwire(t *testing.T) {
	a := NewAliases()

	require.NoError(t, a.Wire(model.Currency{ID: "gold"}, []string{"gold", "G"}))

	id, ok := a.Resolve("g")
	assert.True(t, ok)
	assert.Equal(t, "gold", id)

	a.Unwire("gold")
	_, ok = a.Resolve("g")
	assert.False(t, ok)
	_, ok = a.Resolve("gold")
	assert.False(t, ok)

	// unknown command is a no-op
	a.Unwire("gold")
}

func TestAliases_RewireReplacesCommand(t *testing.T) {
	a := NewAliases()

	require.NoError(t, a.Wire(model.Currency{ID: "gold"}, []string{"gold", "g"}))
	require.NoError(t, a.Wire(model.Currency{ID: "gold"}, []string{"gold", "au"}))

	_, ok := a.Resolve("g")
	assert.False(t, ok)
	id, ok := a.Resolve("au")
	assert.True(t, ok)
	assert.Equal(t, "gold", id)
}

func TestAliases_Taken(t *testing.T) {
	a := NewAliases()

	require.NoError(t, a.Wire(model.Currency{ID: "gold"}, []string{"gold", "money"}))
	err := a.Wire(model.Currency{ID: "coins"}, []string{"coins", "money"})
	assert.ErrorIs(t, err, ErrAliasTaken)

	id, _ := a.Resolve("money")
	assert.Equal(t, "gold", id)
	id, _ = a.Resolve("coins")
	assert.Equal(t, "coins", id)

	// shortcut command pointing at an existing currency
	require.NoError(t, a.Wire(model.Currency{ID: "coins"}, []string{"baltop"}))
	id, _ = a.Resolve("baltop")
	assert.Equal(t, "coins", id)
}

func TestAliases_Empty(t *testing.T) {
	assert.Error(t, NewAliases().Wire(model.Currency{ID: "gold"}, nil))
}
