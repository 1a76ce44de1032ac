// persist.go - JSON snapshots of the ledger state.
//
// The snapshot stores only what cannot be recomputed: the commitment
// leaves and nullifiers in insertion order, plus the epoch history. Both
// accumulators are deterministic replays of their insertion sequences, so
// loading rebuilds every internal node and arrives at the same roots.

package ledger

import (
	"encoding/json"
	"math/big"
	"os"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zorb-labs/zorbcore/internal/field"
	"github.com/zorb-labs/zorbcore/internal/merkle"
	"github.com/zorb-labs/zorbcore/internal/nullset"
	"github.com/zorb-labs/zorbcore/internal/prover"
	"github.com/zorb-labs/zorbcore/internal/reward"
)

type epochRecord struct {
	ID       uint64    `json:"id"`
	Rate     string    `json:"rate"`
	Status   string    `json:"status"`
	FrozenAt time.Time `json:"frozen_at,omitempty"`
}

type snapshot struct {
	Depth       int           `json:"depth"`
	Commitments []string      `json:"commitments"`
	Nullifiers  []string      `json:"nullifiers"`
	Epochs      []epochRecord `json:"epochs"`
}

// SaveToFile writes the ledger state as indented JSON, overwriting path.
func (l *Ledger) SaveToFile(path string) error {
	l.mu.Lock()
	snap := snapshot{
		Depth:       l.tree.Depth(),
		Commitments: elementsToStrings(l.tree.Leaves()),
		Nullifiers:  elementsToStrings(l.set.Values()),
	}
	for _, e := range l.acc.History() {
		snap.Epochs = append(snap.Epochs, epochRecord{
			ID:       e.ID,
			Rate:     e.Rate.String(),
			Status:   e.Status.String(),
			FrozenAt: e.FrozenAt,
		})
	}
	l.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(snap), "encode snapshot")
}

// LoadFromFile rebuilds a ledger by replaying a snapshot.
func LoadFromFile(path string, h field.Hasher, v prover.Verifier, log zerolog.Logger) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}

	var epochs []reward.Epoch
	for _, r := range snap.Epochs {
		rate, ok := new(big.Int).SetString(r.Rate, 10)
		if !ok {
			return nil, errors.Errorf("epoch %d: bad rate %q", r.ID, r.Rate)
		}
		status, err := parseStatus(r.Status)
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d", r.ID)
		}
		epochs = append(epochs, reward.Epoch{ID: r.ID, Rate: rate, Status: status, FrozenAt: r.FrozenAt})
	}
	acc, err := reward.Restore(epochs)
	if err != nil {
		return nil, errors.Wrap(err, "restore epochs")
	}

	tree := merkle.NewTree(h, snap.Depth)
	for i, s := range snap.Commitments {
		cm, err := parseElement(s)
		if err != nil {
			return nil, errors.Wrapf(err, "commitment %d", i)
		}
		if _, err := tree.Insert(cm); err != nil {
			return nil, errors.Wrapf(err, "replay commitment %d", i)
		}
	}
	set := nullset.NewSet(h, snap.Depth)
	for i, s := range snap.Nullifiers {
		nf, err := parseElement(s)
		if err != nil {
			return nil, errors.Wrapf(err, "nullifier %d", i)
		}
		if _, _, err := set.Insert(nf); err != nil {
			return nil, errors.Wrapf(err, "replay nullifier %d", i)
		}
	}

	log.Info().
		Int("depth", snap.Depth).
		Int("commitments", len(snap.Commitments)).
		Int("nullifiers", len(snap.Nullifiers)).
		Int("epochs", len(snap.Epochs)).
		Msg("ledger restored from snapshot")
	return &Ledger{hasher: h, tree: tree, set: set, acc: acc, verifier: v, log: log}, nil
}

func elementsToStrings(es []fr.Element) []string {
	out := make([]string, len(es))
	for i := range es {
		out[i] = es[i].String()
	}
	return out
}

func parseElement(s string) (fr.Element, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fr.Element{}, errors.Errorf("bad field element %q", s)
	}
	return field.FromBig(v)
}

func parseStatus(s string) (reward.Status, error) {
	switch s {
	case reward.Active.String():
		return reward.Active, nil
	case reward.Frozen.String():
		return reward.Frozen, nil
	default:
		return 0, errors.Errorf("bad epoch status %q", s)
	}
}
