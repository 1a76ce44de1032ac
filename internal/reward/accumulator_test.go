package reward

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func scaled(x int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(x), new(big.Int).Quo(Scale, big.NewInt(100)))
}

func TestRateMonotonicity(t *testing.T) {
	a, err := NewAccumulator(Scale)
	require.NoError(t, err)

	require.NoError(t, a.SetRate(scaled(105)))
	require.NoError(t, a.SetRate(scaled(105))) // equal is fine
	require.NoError(t, a.SetRate(scaled(110)))

	err = a.SetRate(scaled(109))
	require.ErrorIs(t, err, ErrRateRegression)
	require.Equal(t, scaled(110), a.Current().Rate)
}

func TestFreezeLifecycle(t *testing.T) {
	a, err := NewAccumulator(Scale)
	require.NoError(t, err)

	_, err = a.FrozenRate()
	require.ErrorIs(t, err, ErrNotFrozen)

	require.NoError(t, a.SetRate(scaled(120)))
	require.NoError(t, a.Freeze(0))

	rate, err := a.FrozenRate()
	require.NoError(t, err)
	require.Equal(t, scaled(120), rate)

	// Frozen means frozen: no further movement, no second freeze.
	require.ErrorIs(t, a.SetRate(scaled(130)), ErrAlreadyFrozen)
	require.ErrorIs(t, a.Freeze(0), ErrAlreadyFrozen)

	cur := a.Current()
	require.Equal(t, Frozen, cur.Status)
	require.False(t, cur.FrozenAt.IsZero())
}

func TestFinalizeOpensNextEpoch(t *testing.T) {
	a, err := NewAccumulator(Scale)
	require.NoError(t, err)

	_, err = a.Finalize(0)
	require.ErrorIs(t, err, ErrNotFrozen)

	require.NoError(t, a.SetRate(scaled(120)))
	require.NoError(t, a.Freeze(0))

	next, err := a.Finalize(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), next.ID)
	require.Equal(t, Active, next.Status)
	// The new epoch inherits the frozen rate as its floor.
	require.Equal(t, scaled(120), next.Rate)
	require.ErrorIs(t, a.SetRate(scaled(119)), ErrRateRegression)
}

func TestEpochIDMustBeCurrent(t *testing.T) {
	a, err := NewAccumulator(Scale)
	require.NoError(t, err)

	require.ErrorIs(t, a.Freeze(3), ErrUnknownEpoch)
	require.NoError(t, a.Freeze(0))
	_, err = a.Finalize(7)
	require.ErrorIs(t, err, ErrUnknownEpoch)
}

func TestCurrentReturnsCopy(t *testing.T) {
	a, err := NewAccumulator(Scale)
	require.NoError(t, err)

	e := a.Current()
	e.Rate.SetInt64(0)
	require.Equal(t, Scale, a.Current().Rate)
}

func TestRestoreRoundTrip(t *testing.T) {
	a, err := NewAccumulator(Scale)
	require.NoError(t, err)
	require.NoError(t, a.SetRate(scaled(115)))
	require.NoError(t, a.Freeze(0))
	_, err = a.Finalize(0)
	require.NoError(t, err)
	require.NoError(t, a.SetRate(scaled(140)))

	b, err := Restore(a.History())
	require.NoError(t, err)
	require.Equal(t, a.Current(), b.Current())
	require.Len(t, b.History(), 2)
}

func TestRestoreRejectsCorruptHistory(t *testing.T) {
	base := []Epoch{
		{ID: 0, Rate: scaled(110), Status: Frozen},
		{ID: 1, Rate: scaled(120)},
	}

	_, err := Restore(nil)
	require.Error(t, err)

	// Non-contiguous ids.
	bad := []Epoch{{ID: 0, Rate: scaled(100), Status: Frozen}, {ID: 2, Rate: scaled(110)}}
	_, err = Restore(bad)
	require.Error(t, err)

	// Rate regression between epochs.
	bad = []Epoch{{ID: 0, Rate: scaled(120), Status: Frozen}, {ID: 1, Rate: scaled(110)}}
	_, err = Restore(bad)
	require.ErrorIs(t, err, ErrRateRegression)

	// A non-final epoch that was never frozen.
	bad = []Epoch{{ID: 0, Rate: scaled(100)}, {ID: 1, Rate: scaled(110)}}
	_, err = Restore(bad)
	require.ErrorIs(t, err, ErrNotFrozen)

	_, err = Restore(base)
	require.NoError(t, err)
}

func TestHarvest(t *testing.T) {
	// 1000 units held from rate 1.00 to rate 1.25 earn 250.
	y, err := Harvest(big.NewInt(1000), scaled(100), scaled(125))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(250), y)

	// No movement, no yield.
	y, err = Harvest(big.NewInt(1000), scaled(100), scaled(100))
	require.NoError(t, err)
	require.Zero(t, big.NewInt(0).Cmp(y))

	_, err = Harvest(big.NewInt(1000), scaled(125), scaled(100))
	require.ErrorIs(t, err, ErrRateRegression)

	_, err = Harvest(big.NewInt(-1), scaled(100), scaled(125))
	require.Error(t, err)
}
