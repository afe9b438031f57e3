// service.go - The caller-facing surface: commit, resolve, verify, relay.
//
// Service composes the portfolio, merkle, relay, and share layers into the
// four operations a client uses. The commit path here is the local-keypair
// flow (demo and CLI); remote clients sign their own ownership message and
// go through RelayCommit with a pre-built request.

package flexanon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"flexanon/internal/commitment"
	"flexanon/internal/faults"
	"flexanon/internal/ledger"
	"flexanon/internal/merkle"
	"flexanon/internal/ownership"
	"flexanon/internal/portfolio"
	"flexanon/internal/relay"
	"flexanon/internal/share"
)

// Service is the composed application surface.
type Service struct {
	provider    portfolio.Provider
	coordinator *relay.Coordinator
	shares      *share.Service
	oracle      ledger.Oracle
	chain       string
	now         func() time.Time
	log         zerolog.Logger
}

// NewService wires the application layers together.
func NewService(provider portfolio.Provider, coordinator *relay.Coordinator, shares *share.Service, oracle ledger.Oracle, chain string, log zerolog.Logger) *Service {
	return &Service{
		provider:    provider,
		coordinator: coordinator,
		shares:      shares,
		oracle:      oracle,
		chain:       chain,
		now:         time.Now,
		log:         log,
	}
}

// SetClock injects a deterministic time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CommitParams drives one full commit-and-share flow for a locally held key.
type CommitParams struct {
	Wallet      *ownership.Keypair
	Preferences portfolio.Preferences
	ExpiresAt   *int64 // optional unix seconds
}

// CommitResult reports a confirmed commit and its share token.
type CommitResult struct {
	TokenID       string `json:"token_id"`
	SlotAddress   string `json:"slot_address"`
	Version       uint32 `json:"version"`
	MerkleRoot    string `json:"merkle_root"`
	RevealedCount int    `json:"revealed_count"`
	HiddenCount   int    `json:"hidden_count"`
	PrivacyScore  uint8  `json:"privacy_score"`
}

// Commit runs the whole pipeline for a locally held key: snapshot, leaves,
// disclosure, tree, relayed ledger write, and share token creation. The
// ownership message is built and signed here since the key is local.
func (s *Service) Commit(ctx context.Context, params CommitParams) (*CommitResult, error) {
	if params.Wallet == nil {
		return nil, faults.Wrap(faults.ErrValidation, "a wallet keypair is required")
	}
	owner := params.Wallet.Address()

	snap, err := s.provider.Snapshot(ctx, owner, s.chain)
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "portfolio snapshot failed: %v", err)
	}

	leaves := portfolio.BuildLeaves(snap, owner)
	tree := merkle.NewTree(portfolio.MerkleLeaves(leaves))
	timestampMS := s.now().UnixMilli()
	message := ownership.BuildMessage(owner, tree.Root(), timestampMS)

	return s.CommitFacts(ctx, CommitFactsParams{
		Owner:       owner,
		Facts:       snap,
		Preferences: params.Preferences,
		ExpiresAt:   params.ExpiresAt,
		Signature:   params.Wallet.Sign([]byte(message)),
		Message:     message,
		TimestampMS: timestampMS,
	})
}

// CommitFactsParams is the remote-signer variant of CommitParams: the caller
// supplies the fact-set and a signature over the ownership message they
// built themselves.
type CommitFactsParams struct {
	Owner       string                `json:"owner"`
	Facts       *portfolio.Snapshot   `json:"facts"`
	Preferences portfolio.Preferences `json:"preferences"`
	ExpiresAt   *int64                `json:"expires_at,omitempty"`
	Signature   string                `json:"signature"`
	Message     string                `json:"message"`
	TimestampMS int64                 `json:"timestamp"`
}

// CommitFacts commits a caller-supplied fact-set under a pre-built
// signature. The tree is re-derived here, so the signature must cover the
// root these exact facts produce.
func (s *Service) CommitFacts(ctx context.Context, params CommitFactsParams) (*CommitResult, error) {
	if params.Facts == nil {
		return nil, faults.Wrap(faults.ErrValidation, "a fact-set is required")
	}
	owner := params.Owner

	leaves := portfolio.BuildLeaves(params.Facts, owner)
	disclosure := portfolio.SelectDisclosure(leaves, params.Preferences)
	tree := merkle.NewTree(portfolio.MerkleLeaves(leaves))
	root := tree.Root()
	score := portfolio.PrivacyScore(len(disclosure.Revealed), len(leaves))

	result, err := s.coordinator.Commit(ctx, &relay.Request{
		Owner:      owner,
		MerkleRoot: root,
		Metadata: commitment.Metadata{
			Chain:             s.chain,
			SnapshotTimestamp: params.Facts.SnapshotTimestamp,
			ExpiresAt:         params.ExpiresAt,
			PrivacyScore:      score,
		},
		Signature:   params.Signature,
		Message:     params.Message,
		TimestampMS: params.TimestampMS,
	})
	if err != nil {
		return nil, err
	}

	proofs := make([]share.ProofEntry, 0, len(disclosure.Revealed))
	for _, leaf := range disclosure.Revealed {
		proof, err := tree.Proof(leaf.Key)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, share.ProofEntry{
			Leaf:     leaf.MerkleLeaf(),
			Siblings: proof.Siblings,
			Path:     proof.Path,
		})
	}

	token, err := s.shares.Create(ctx, share.CreateParams{
		OwnerAddress:      owner,
		CommitmentAddress: result.SlotAddress,
		CommitmentVersion: result.Version,
		RevealedLeaves:    disclosure.Revealed,
		ProofData:         proofs,
		Metadata: share.TokenMetadata{
			Chain:       s.chain,
			MerkleRoot:  root,
			TotalLeaves: len(leaves),
			HiddenCount: len(disclosure.Hidden),
		},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("owner", owner).
		Str("token", token.TokenID).
		Uint32("version", result.Version).
		Uint8("privacy_score", score).
		Msg("commit pipeline complete")

	return &CommitResult{
		TokenID:       token.TokenID,
		SlotAddress:   result.SlotAddress,
		Version:       result.Version,
		MerkleRoot:    root,
		RevealedCount: len(disclosure.Revealed),
		HiddenCount:   len(disclosure.Hidden),
		PrivacyScore:  score,
	}, nil
}

// RelayCommit forwards a pre-signed request to the coordinator. This is the
// path remote clients use: the service never sees their private key.
func (s *Service) RelayCommit(ctx context.Context, req *relay.Request) (*relay.Result, error) {
	return s.coordinator.Commit(ctx, req)
}

// Resolve serves a share token to a viewer and records the view. View
// tracking failures never block resolution.
func (s *Service) Resolve(ctx context.Context, tokenID, viewerIP, userAgent string) (*share.PublicShare, error) {
	public, err := s.shares.Resolve(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	s.shares.TrackView(tokenID, viewerIP, userAgent)
	return public, nil
}

// VerifyProof checks one revealed leaf against a committed root. Pure; any
// third party can run the same check from the public share document.
func (s *Service) VerifyProof(root string, entry share.ProofEntry) bool {
	return merkle.Verify(root, entry.Leaf, entry.Proof())
}

// RevokeShare kills a share link without touching the on-ledger record.
func (s *Service) RevokeShare(ctx context.Context, tokenID, owner string) error {
	return s.shares.Revoke(ctx, tokenID, owner)
}

// ListShares returns an owner's tokens, newest first.
func (s *Service) ListShares(ctx context.Context, owner string) ([]*share.Token, error) {
	return s.shares.List(ctx, owner)
}

// ViewCount reports how many times a share has been resolved.
func (s *Service) ViewCount(tokenID string) (int, error) {
	return s.shares.ViewCount(tokenID)
}

// CommitmentStatus reads the current on-ledger record for an owner.
func (s *Service) CommitmentStatus(ctx context.Context, owner string) (*commitment.Record, error) {
	slot, err := commitment.SlotAddress(owner)
	if err != nil {
		return nil, err
	}
	raw, err := s.oracle.ReadRecord(ctx, slot)
	if err != nil {
		return nil, err
	}
	return commitment.Decode(raw)
}
