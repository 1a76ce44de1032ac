// assembler.go - Builds the full witness for one shielded spend.
//
// The assembler is the wallet-side gatekeeper: it collects the spender's
// secrets, the funding notes with their tree openings, and the requested
// outputs, then checks every statement precondition locally. Anything it
// rejects would have wasted a proving run or been rejected at submission;
// anything it accepts is a well-formed (public, private) input pair for the
// spend circuit.

package statement

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/field"
	"github.com/zorb-labs/zorbcore/internal/keys"
	"github.com/zorb-labs/zorbcore/internal/merkle"
	"github.com/zorb-labs/zorbcore/internal/note"
	"github.com/zorb-labs/zorbcore/internal/nullset"
	"github.com/zorb-labs/zorbcore/internal/reward"
)

// The circuit is compiled for a fixed 2-in 2-out shape. Spends with fewer
// real inputs pad with dust notes the wallet mints to itself.
const (
	NumInputs  = 2
	NumOutputs = 2
)

var (
	// ErrMalformedInputSet covers structural defects in the spend request:
	// wrong arity, foreign notes, mismatched roots, or openings that do not
	// verify.
	ErrMalformedInputSet = errors.New("spend inputs are malformed")

	// ErrVersionMismatch reports a funding note whose circuit generation is
	// not the one being proved against.
	ErrVersionMismatch = errors.New("note version does not match the spend circuit")

	// ErrValueImbalance reports inputs plus yield not covering outputs plus
	// fee. The circuit enforces the same equation; failing here saves the
	// proving run.
	ErrValueImbalance = errors.New("transaction does not conserve value")
)

// SpendInput is one funding note with the ledger material proving it is
// spendable: a commitment-tree opening and a nullifier-set low-element proof.
type SpendInput struct {
	Note     note.Note
	Witness  merkle.Witness
	LowProof nullset.LowElementProof
}

// OutputSpec is the caller's request for one output note. Amount is the
// note's face value; yield earned by the inputs is folded in by the caller
// before requesting outputs.
type OutputSpec struct {
	AssetID *big.Int
	Amount  *big.Int
	Pk      fr.Element
}

// PublicInputs are the signals the verifier sees. Everything else stays on
// the prover's machine.
type PublicInputs struct {
	CommitmentRoot   fr.Element
	NullifierRoot    fr.Element
	Nullifiers       [NumInputs]fr.Element
	NewCommitments   [NumOutputs]fr.Element
	RecipientBinding fr.Element
	RelayerBinding   fr.Element
	Fee              fr.Element
	FrozenRate       fr.Element
	Version          note.CircuitVersion
}

// PrivateInputs is the secret witness half of the statement.
type PrivateInputs struct {
	Ask     fr.Element
	Nsk     fr.Element
	Inputs  [NumInputs]SpendInput
	Outputs [NumOutputs]note.Note
}

// Statement is a fully assembled, locally validated spend, ready for the
// prover.
type Statement struct {
	ID      uuid.UUID
	Public  PublicInputs
	Private PrivateInputs
}

// Request carries everything the wallet knows about one intended spend.
type Request struct {
	Ask, Nsk   *big.Int
	Inputs     [NumInputs]SpendInput
	Outputs    [NumOutputs]OutputSpec
	Fee        *big.Int
	FrozenRate *big.Int
	Recipient  *big.Int
	Relayer    *big.Int
}

// Assembler validates spend requests and produces prover inputs.
type Assembler struct {
	hasher field.Hasher
}

// NewAssembler returns an assembler over the given hash.
func NewAssembler(h field.Hasher) *Assembler {
	return &Assembler{hasher: h}
}

// Assemble checks every statement precondition and builds the witness.
//
// Checks, in order: secrets derive the claimed ownership of every input;
// all tree openings share one commitment root and verify; all low-element
// proofs share one nullifier root and verify for the freshly derived
// nullifiers; nullifiers are pairwise distinct; amounts conserve under the
// scaled yield equation. Output notes are minted here with their rho chained
// to the matching input's nullifier.
func (a *Assembler) Assemble(req Request) (*Statement, error) {
	ks, err := keys.Derive(a.hasher, req.Ask, req.Nsk)
	if err != nil {
		return nil, errors.Wrap(err, "derive keys")
	}
	fee, err := field.FromBig(req.Fee)
	if err != nil {
		return nil, errors.Wrap(err, "fee")
	}
	if req.Fee.BitLen() > 64 {
		return nil, errors.Wrap(ErrMalformedInputSet, "fee exceeds 64 bits")
	}
	rate, err := field.FromBig(req.FrozenRate)
	if err != nil {
		return nil, errors.Wrap(err, "frozen rate")
	}
	recipient, err := field.FromBig(req.Recipient)
	if err != nil {
		return nil, errors.Wrap(err, "recipient binding")
	}
	relayer, err := field.FromBig(req.Relayer)
	if err != nil {
		return nil, errors.Wrap(err, "relayer binding")
	}

	pub := PublicInputs{
		CommitmentRoot:   req.Inputs[0].Witness.Root,
		NullifierRoot:    req.Inputs[0].LowProof.Root,
		RecipientBinding: recipient,
		RelayerBinding:   relayer,
		Fee:              fee,
		FrozenRate:       rate,
		Version:          note.ActiveVersion,
	}
	// Derive already rejected non-canonical secrets.
	ask, _ := field.FromBig(req.Ask)
	nsk, _ := field.FromBig(req.Nsk)
	priv := PrivateInputs{Ask: ask, Nsk: nsk, Inputs: req.Inputs}

	inSum := new(big.Int)
	for i := range req.Inputs {
		in := &req.Inputs[i]
		if in.Note.Version != note.ActiveVersion {
			return nil, errors.Wrapf(ErrVersionMismatch, "input %d has version %d", i, in.Note.Version)
		}
		if !in.Note.Pk.Equal(&ks.Pk) {
			return nil, errors.Wrapf(ErrMalformedInputSet, "input %d is not owned by the spending keys", i)
		}
		// The circuit range-checks the same bounds; rejecting here is free.
		if field.ToBig(in.Note.Amount).BitLen() > 64 {
			return nil, errors.Wrapf(ErrMalformedInputSet, "input %d amount exceeds 64 bits", i)
		}
		if field.ToBig(in.Note.RewardEntry).Cmp(req.FrozenRate) > 0 {
			return nil, errors.Wrapf(ErrMalformedInputSet, "input %d entry snapshot above the frozen rate", i)
		}

		cm := in.Note.Commitment(a.hasher)
		if !in.Witness.Root.Equal(&pub.CommitmentRoot) {
			return nil, errors.Wrapf(ErrMalformedInputSet, "input %d opens against a different commitment root", i)
		}
		if !merkle.VerifyWitness(a.hasher, cm, in.Witness, pub.CommitmentRoot) {
			return nil, errors.Wrapf(ErrMalformedInputSet, "input %d commitment opening does not verify", i)
		}

		nf := note.Nullify(a.hasher, ks.Nk, in.Note.Rho, cm)
		if !in.LowProof.Root.Equal(&pub.NullifierRoot) {
			return nil, errors.Wrapf(ErrMalformedInputSet, "input %d proves against a different nullifier root", i)
		}
		if !nullset.VerifyLowElement(a.hasher, in.LowProof, nf, pub.NullifierRoot) {
			return nil, errors.Wrapf(ErrMalformedInputSet, "input %d non-membership proof does not verify", i)
		}
		pub.Nullifiers[i] = nf

		// Per-input scaled credit: amount * (Scale + rate - entry).
		credit := new(big.Int).Add(reward.Scale, field.ToBig(rate))
		credit.Sub(credit, field.ToBig(in.Note.RewardEntry))
		credit.Mul(credit, field.ToBig(in.Note.Amount))
		inSum.Add(inSum, credit)
	}
	if err := note.DistinctNullifiers(pub.Nullifiers[:]); err != nil {
		return nil, err
	}

	outSum := new(big.Int).Set(req.Fee)
	for i := range req.Outputs {
		spec := req.Outputs[i]
		if spec.Amount == nil || spec.Amount.BitLen() > 64 {
			return nil, errors.Wrapf(ErrMalformedInputSet, "output %d amount exceeds 64 bits", i)
		}
		out, err := note.ChainedOutput(note.ActiveVersion, spec.AssetID, spec.Amount, req.FrozenRate, spec.Pk, pub.Nullifiers[i])
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		priv.Outputs[i] = *out
		pub.NewCommitments[i] = out.Commitment(a.hasher)
		outSum.Add(outSum, spec.Amount)
	}

	// Scale * (outputs + fee) must equal the scaled input credit exactly.
	outSum.Mul(outSum, reward.Scale)
	if inSum.Cmp(outSum) != 0 {
		return nil, errors.Wrapf(ErrValueImbalance, "scaled in %s, scaled out %s", inSum, outSum)
	}

	return &Statement{ID: uuid.New(), Public: pub, Private: priv}, nil
}
