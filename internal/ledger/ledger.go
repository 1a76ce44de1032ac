// ledger.go - The pool's canonical state: both accumulators plus the epoch
// ledger, behind one lock.
//
// Everything that mutates shared state funnels through this type. The
// indexed nullifier set's splices do not commute and the commitment tree's
// filled-subtree cache assumes ordered appends, so a single mutex guards
// the lot; contention is irrelevant next to proof verification cost.

package ledger

import (
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zorb-labs/zorbcore/internal/field"
	"github.com/zorb-labs/zorbcore/internal/merkle"
	"github.com/zorb-labs/zorbcore/internal/note"
	"github.com/zorb-labs/zorbcore/internal/nullset"
	"github.com/zorb-labs/zorbcore/internal/prover"
	"github.com/zorb-labs/zorbcore/internal/reward"
	"github.com/zorb-labs/zorbcore/internal/statement"
)

var (
	// ErrStaleRoot reports a statement proved against state the ledger no
	// longer recognizes. The commitment root may lag by up to the retained
	// history; the nullifier root must be exactly current, because any
	// splice invalidates every outstanding low-element proof.
	ErrStaleRoot = errors.New("statement references a stale root")

	// ErrProofInvalid reports a proof that failed verification.
	ErrProofInvalid = errors.New("spend proof is invalid")
)

// Roots is the pair of accumulator roots statements are proved against.
type Roots struct {
	Commitment fr.Element
	Nullifier  fr.Element
}

// SubmitResult reports the state transition an accepted spend caused.
type SubmitResult struct {
	StatementID string
	Indices     [statement.NumOutputs]uint64
	Roots       Roots
}

// Ledger owns the commitment tree, the nullifier set, and the reward
// accumulator. Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	hasher   field.Hasher
	tree     *merkle.Tree
	set      *nullset.Set
	acc      *reward.Accumulator
	verifier prover.Verifier
	log      zerolog.Logger
}

// New builds an empty ledger at the given depth with epoch 0 open at
// initialRate.
func New(h field.Hasher, depth int, initialRate *big.Int, v prover.Verifier, log zerolog.Logger) (*Ledger, error) {
	acc, err := reward.NewAccumulator(initialRate)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		hasher:   h,
		tree:     merkle.NewTree(h, depth),
		set:      nullset.NewSet(h, depth),
		acc:      acc,
		verifier: v,
		log:      log,
	}, nil
}

// Stats is a point-in-time size report for operational surfaces.
type Stats struct {
	Commitments uint64
	Nullifiers  uint64
	Capacity    uint64
	Epoch       uint64
}

// Stats reports the current accumulator sizes and epoch.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Commitments: l.tree.Size(),
		Nullifiers:  l.set.Size(),
		Capacity:    l.tree.Capacity(),
		Epoch:       l.acc.Current().ID,
	}
}

// CurrentRoots returns both accumulator roots.
func (l *Ledger) CurrentRoots() Roots {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Roots{Commitment: l.tree.Root(), Nullifier: l.set.Root()}
}

// AppendCommitment records a commitment outside the spend path, e.g. a
// shielding deposit whose value is publicly visible.
func (l *Ledger) AppendCommitment(cm fr.Element) (uint64, Roots, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := l.tree.Insert(cm)
	if err != nil {
		return 0, Roots{}, err
	}
	l.log.Debug().Uint64("index", idx).Msg("commitment appended")
	return idx, Roots{Commitment: l.tree.Root(), Nullifier: l.set.Root()}, nil
}

// AppendNullifier records a spend marker outside the proof path. Used by
// replay and administrative tooling; regular spends go through Submit.
func (l *Ledger) AppendNullifier(nf fr.Element) (nullset.LowElementProof, Roots, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, _, err := l.set.Insert(nf)
	if err != nil {
		return nullset.LowElementProof{}, Roots{}, err
	}
	return p, Roots{Commitment: l.tree.Root(), Nullifier: l.set.Root()}, nil
}

// CommitmentWitness opens the leaf at index against the current root.
func (l *Ledger) CommitmentWitness(index uint64) (merkle.Witness, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree.Witness(index)
}

// ProveNonMembership produces a low-element proof for nf against the
// current nullifier root.
func (l *Ledger) ProveNonMembership(nf fr.Element) (nullset.LowElementProof, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set.ProveNonMembership(nf)
}

// CurrentEpoch returns the newest reward epoch.
func (l *Ledger) CurrentEpoch() reward.Epoch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acc.Current()
}

// SetEpochRate raises the active epoch's accumulator rate.
func (l *Ledger) SetEpochRate(rate *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acc.SetRate(rate)
}

// FreezeEpoch fixes the current epoch's rate for proving.
func (l *Ledger) FreezeEpoch(epochID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.acc.Freeze(epochID); err != nil {
		return err
	}
	l.log.Info().Uint64("epoch", epochID).Msg("epoch frozen")
	return nil
}

// FinalizeEpoch closes the frozen epoch and opens its successor.
func (l *Ledger) FinalizeEpoch(epochID uint64) (reward.Epoch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := l.acc.Finalize(epochID)
	if err != nil {
		return reward.Epoch{}, err
	}
	l.log.Info().Uint64("epoch", epochID).Uint64("next", next.ID).Msg("epoch finalized")
	return next, nil
}

// FrozenRate returns the rate statements must currently reference.
func (l *Ledger) FrozenRate() (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acc.FrozenRate()
}

// Submit applies one proven spend atomically: all checks pass and both
// accumulators advance, or the ledger is untouched.
//
// Check order is cheapest-first. Structural rejections (version, duplicate
// or spent nullifiers, stale roots, capacity) cost a few comparisons;
// pairing verification runs only on statements that could actually land.
func (l *Ledger) Submit(p *prover.Proof, pub statement.PublicInputs) (SubmitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pub.Version != note.ActiveVersion {
		return SubmitResult{}, errors.Wrapf(statement.ErrVersionMismatch, "statement version %d, active %d", pub.Version, note.ActiveVersion)
	}
	if err := note.DistinctNullifiers(pub.Nullifiers[:]); err != nil {
		return SubmitResult{}, err
	}
	for i := range pub.Nullifiers {
		if l.set.Has(pub.Nullifiers[i]) {
			return SubmitResult{}, errors.Wrapf(nullset.ErrAlreadySpent, "input %d", i)
		}
	}
	if !l.tree.KnownRoot(pub.CommitmentRoot) {
		return SubmitResult{}, errors.Wrap(ErrStaleRoot, "commitment root")
	}
	cur := l.set.Root()
	if !pub.NullifierRoot.Equal(&cur) {
		return SubmitResult{}, errors.Wrap(ErrStaleRoot, "nullifier root")
	}
	if l.tree.Size()+statement.NumOutputs > l.tree.Capacity() {
		return SubmitResult{}, errors.Wrap(merkle.ErrTreeFull, "commitment tree")
	}
	if l.set.Size()+statement.NumInputs+1 > uint64(1)<<uint(l.set.Depth()) {
		return SubmitResult{}, errors.Wrap(nullset.ErrTreeFull, "nullifier set")
	}

	if err := l.verifier.Verify(p, pub); err != nil {
		l.log.Warn().Str("statement", p.StatementID).Err(err).Msg("spend rejected")
		return SubmitResult{}, errors.Wrap(ErrProofInvalid, err.Error())
	}

	for i := range pub.Nullifiers {
		if _, _, err := l.set.Insert(pub.Nullifiers[i]); err != nil {
			// Unreachable after the checks above; a failure here means the
			// ledger invariants are broken.
			return SubmitResult{}, errors.Wrapf(err, "record nullifier %d", i)
		}
	}
	res := SubmitResult{StatementID: p.StatementID}
	for i := range pub.NewCommitments {
		idx, err := l.tree.Insert(pub.NewCommitments[i])
		if err != nil {
			return SubmitResult{}, errors.Wrapf(err, "record commitment %d", i)
		}
		res.Indices[i] = idx
	}
	res.Roots = Roots{Commitment: l.tree.Root(), Nullifier: l.set.Root()}

	l.log.Info().
		Str("statement", p.StatementID).
		Uint64("commitments", l.tree.Size()).
		Uint64("nullifiers", l.set.Size()).
		Msg("spend accepted")
	return res, nil
}
