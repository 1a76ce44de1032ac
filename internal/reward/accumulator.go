// accumulator.go - Epoch-indexed global yield-rate ledger.
//
// Yield accrues to the pool as a whole through a single monotonically
// growing rate. A note records the rate at its creation (its entry
// snapshot); the difference between the current frozen rate and that
// snapshot, times the hidden amount, is the note's earned yield. The
// per-note arithmetic happens inside the proof statement - the only value
// this package ever exposes is the pool-wide rate.
//
// Freezing decouples proof generation from a continuously updating rate:
// while an epoch is frozen every prover sees one agreed value, however long
// proving takes.

package reward

import (
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/field"
)

// Scale is the fixed-point denominator for rates: a rate equal to Scale
// means 1.0, i.e. no yield accrued yet.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Status is the lifecycle state of an epoch.
type Status uint8

const (
	// Active epochs accept rate increases.
	Active Status = iota
	// Frozen epochs are immutable; statements reference their rate.
	Frozen
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Frozen:
		return "frozen"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyFrozen flags a double freeze - a programming error, not a
	// race to retry.
	ErrAlreadyFrozen = errors.New("epoch rate is already frozen")

	// ErrNotFrozen means the operation needs a frozen rate first.
	ErrNotFrozen = errors.New("epoch rate is not frozen")

	// ErrRateRegression rejects any rate decrease; accrued credit is never
	// clawed back.
	ErrRateRegression = errors.New("accumulator rate may not decrease")

	// ErrUnknownEpoch reports an epoch id that is not the current one.
	ErrUnknownEpoch = errors.New("epoch is not current")
)

// Epoch is one accounting period. Rate is 1e18-scaled and non-decreasing
// across the whole history.
type Epoch struct {
	ID       uint64
	Rate     *big.Int
	Status   Status
	FrozenAt time.Time
}

func (e Epoch) clone() Epoch {
	e.Rate = new(big.Int).Set(e.Rate)
	return e
}

// Accumulator is the append-only epoch history. Mutation goes through the
// ledger's single writer, the same discipline as the trees.
type Accumulator struct {
	epochs []Epoch
}

// NewAccumulator opens epoch 0 at the given starting rate; Scale (1.0) is
// the customary genesis value.
func NewAccumulator(initial *big.Int) (*Accumulator, error) {
	if _, err := field.FromBig(initial); err != nil {
		return nil, errors.Wrap(err, "initial rate")
	}
	return &Accumulator{
		epochs: []Epoch{{ID: 0, Rate: new(big.Int).Set(initial)}},
	}, nil
}

// Restore rebuilds an accumulator from a persisted history, re-validating
// the monotonicity and lifecycle invariants.
func Restore(history []Epoch) (*Accumulator, error) {
	if len(history) == 0 {
		return nil, errors.New("empty epoch history")
	}
	epochs := make([]Epoch, 0, len(history))
	for i, e := range history {
		if _, err := field.FromBig(e.Rate); err != nil {
			return nil, errors.Wrapf(err, "epoch %d rate", e.ID)
		}
		if e.ID != uint64(i) {
			return nil, errors.Errorf("epoch ids must be contiguous, got %d at position %d", e.ID, i)
		}
		if i > 0 {
			prev := epochs[i-1]
			if prev.Status != Frozen {
				return nil, errors.Wrapf(ErrNotFrozen, "epoch %d precedes an open epoch", prev.ID)
			}
			if e.Rate.Cmp(prev.Rate) < 0 {
				return nil, errors.Wrapf(ErrRateRegression, "epoch %d", e.ID)
			}
		}
		epochs = append(epochs, e.clone())
	}
	return &Accumulator{epochs: epochs}, nil
}

// Current returns a copy of the newest epoch.
func (a *Accumulator) Current() Epoch {
	return a.epochs[len(a.epochs)-1].clone()
}

// History returns copies of all epochs, oldest first.
func (a *Accumulator) History() []Epoch {
	out := make([]Epoch, 0, len(a.epochs))
	for _, e := range a.epochs {
		out = append(out, e.clone())
	}
	return out
}

// SetRate raises the active epoch's rate as pool-wide yield accrues.
func (a *Accumulator) SetRate(rate *big.Int) error {
	if _, err := field.FromBig(rate); err != nil {
		return errors.Wrap(err, "rate")
	}
	cur := &a.epochs[len(a.epochs)-1]
	if cur.Status == Frozen {
		return errors.Wrapf(ErrAlreadyFrozen, "epoch %d", cur.ID)
	}
	if rate.Cmp(cur.Rate) < 0 {
		return errors.Wrapf(ErrRateRegression, "epoch %d: %s < %s", cur.ID, rate, cur.Rate)
	}
	cur.Rate.Set(rate)
	return nil
}

// Freeze transitions the epoch Active -> Frozen, fixing its rate for every
// statement generated against it.
func (a *Accumulator) Freeze(epochID uint64) error {
	cur := &a.epochs[len(a.epochs)-1]
	if cur.ID != epochID {
		return errors.Wrapf(ErrUnknownEpoch, "epoch %d, current is %d", epochID, cur.ID)
	}
	if cur.Status == Frozen {
		return errors.Wrapf(ErrAlreadyFrozen, "epoch %d", epochID)
	}
	cur.Status = Frozen
	cur.FrozenAt = time.Now().UTC()
	return nil
}

// Finalize closes the frozen epoch and opens the next one, seeded with the
// frozen rate as its floor.
func (a *Accumulator) Finalize(epochID uint64) (Epoch, error) {
	cur := &a.epochs[len(a.epochs)-1]
	if cur.ID != epochID {
		return Epoch{}, errors.Wrapf(ErrUnknownEpoch, "epoch %d, current is %d", epochID, cur.ID)
	}
	if cur.Status != Frozen {
		return Epoch{}, errors.Wrapf(ErrNotFrozen, "epoch %d", epochID)
	}
	a.epochs = append(a.epochs, Epoch{ID: cur.ID + 1, Rate: new(big.Int).Set(cur.Rate)})
	return a.Current(), nil
}

// FrozenRate returns the rate statements must reference. Proving against an
// active epoch would race the rate; callers freeze first.
func (a *Accumulator) FrozenRate() (*big.Int, error) {
	cur := a.epochs[len(a.epochs)-1]
	if cur.Status != Frozen {
		return nil, errors.Wrapf(ErrNotFrozen, "epoch %d", cur.ID)
	}
	return new(big.Int).Set(cur.Rate), nil
}

// Harvest estimates the yield a note has earned since entry:
//
//	amount * (rate - entry) / Scale
//
// This is the wallet-side plaintext mirror of the in-proof computation; it
// operates on values the holder already knows and never leaves their
// machine.
func Harvest(amount, entry, rate *big.Int) (*big.Int, error) {
	for name, v := range map[string]*big.Int{"amount": amount, "entry": entry, "rate": rate} {
		if _, err := field.FromBig(v); err != nil {
			return nil, errors.Wrap(err, name)
		}
	}
	if rate.Cmp(entry) < 0 {
		return nil, errors.Wrapf(ErrRateRegression, "entry %s above rate %s", entry, rate)
	}
	y := new(big.Int).Sub(rate, entry)
	y.Mul(y, amount)
	return y.Quo(y, Scale), nil
}
