// service.go - Share-token lifecycle: create, resolve, revoke, list.
//
// A token is created once, at disclosure time, after the commitment it
// references has been verified on-ledger. Resolution re-verifies against the
// current on-ledger state on every call, so staleness and revocation take
// effect immediately without touching stored tokens.

package share

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"flexanon/internal/commitment"
	"flexanon/internal/faults"
	"flexanon/internal/ledger"
	"flexanon/internal/portfolio"
)

// maxIDAttempts bounds the token-ID collision retry loop.
const maxIDAttempts = 10

// Service manages share tokens against the token store and ledger oracle.
type Service struct {
	store  *Store
	oracle ledger.Oracle
	now    func() time.Time
	log    zerolog.Logger
}

// NewService wires a share service.
func NewService(store *Store, oracle ledger.Oracle, log zerolog.Logger) *Service {
	return &Service{store: store, oracle: oracle, now: time.Now, log: log}
}

// SetClock injects a deterministic time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams captures one disclosure decision.
type CreateParams struct {
	OwnerAddress      string
	CommitmentAddress string
	CommitmentVersion uint32
	RevealedLeaves    []portfolio.Leaf
	ProofData         []ProofEntry
	Metadata          TokenMetadata
}

// Create verifies the referenced commitment on-ledger and stores a new
// token with a fresh collision-checked ID.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Token, error) {
	if params.OwnerAddress == "" || params.CommitmentAddress == "" {
		return nil, faults.Wrap(faults.ErrValidation, "owner and commitment address are required")
	}
	if len(params.ProofData) != len(params.RevealedLeaves) {
		return nil, faults.Wrap(faults.ErrValidation, "proof entries must pair 1:1 with revealed leaves")
	}

	record, err := s.currentRecord(ctx, params.CommitmentAddress)
	if err != nil {
		return nil, err
	}
	if record.Owner != params.OwnerAddress {
		return nil, faults.Wrap(faults.ErrValidation, "commitment at %s is not owned by %s", params.CommitmentAddress, params.OwnerAddress)
	}
	if record.Revoked {
		return nil, faults.Wrap(faults.ErrRevoked, "commitment at %s is revoked on-ledger", params.CommitmentAddress)
	}

	token := &Token{
		OwnerAddress:      params.OwnerAddress,
		CommitmentAddress: params.CommitmentAddress,
		CommitmentVersion: params.CommitmentVersion,
		RevealedLeaves:    params.RevealedLeaves,
		ProofData:         params.ProofData,
		Metadata:          params.Metadata,
		CreatedAt:         s.now().UTC(),
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		token.TokenID = newTokenID()
		err := s.store.Put(token)
		if err == nil {
			s.log.Info().
				Str("token", token.TokenID).
				Str("owner", token.OwnerAddress).
				Int("revealed", len(token.RevealedLeaves)).
				Msg("share token created")
			return token, nil
		}
		if !errors.Is(err, faults.ErrValidation) {
			return nil, err
		}
	}
	return nil, faults.Wrap(faults.ErrValidation, "failed to generate a unique token ID after %d attempts", maxIDAttempts)
}

// OnLedgerStatus is what resolution reports about the commitment backing a
// token.
type OnLedgerStatus struct {
	Verified bool   `json:"verified"`
	Revoked  bool   `json:"revoked"`
	Version  uint32 `json:"version"`
	Root     string `json:"merkle_root"`
}

// PublicShare is the document served to a share-link viewer.
type PublicShare struct {
	TokenID           string                 `json:"token_id"`
	CommitmentAddress string                 `json:"commitment_address"`
	CommitmentVersion uint32                 `json:"commitment_version"`
	CommittedAt       time.Time              `json:"committed_at"`
	RevealedData      map[string]interface{} `json:"revealed_data"`
	RevealedLeaves    []portfolio.Leaf       `json:"revealed_leaves"`
	ProofData         []ProofEntry           `json:"proof_data"`
	OnLedger          OnLedgerStatus         `json:"on_ledger_status"`
	Privacy           PrivacySummary         `json:"privacy"`
}

// PrivacySummary tells a viewer how much of the portfolio stayed hidden.
type PrivacySummary struct {
	WalletRevealed bool `json:"wallet_revealed"`
	TotalLeaves    int  `json:"total_leaves"`
	RevealedCount  int  `json:"revealed_count"`
}

// Resolve loads a token and re-verifies it against the current on-ledger
// record. Stale tokens (version advanced) and revoked tokens (either flag)
// fail with distinct kinds so clients can show the right message.
func (s *Service) Resolve(ctx context.Context, tokenID string) (*PublicShare, error) {
	token, err := s.store.Get(tokenID)
	if err != nil {
		return nil, err
	}
	if token.Revoked {
		return nil, faults.Wrap(faults.ErrRevoked, "share token %s was revoked by its owner", tokenID)
	}

	record, err := s.currentRecord(ctx, token.CommitmentAddress)
	if err != nil {
		return nil, err
	}
	if record.Revoked {
		return nil, faults.Wrap(faults.ErrRevoked, "commitment behind token %s is revoked on-ledger", tokenID)
	}
	if record.Version > token.CommitmentVersion {
		return nil, faults.Wrap(faults.ErrVersionMismatch,
			"token %s is bound to version %d but the ledger is at %d", tokenID, token.CommitmentVersion, record.Version)
	}

	walletRevealed := false
	for _, leaf := range token.RevealedLeaves {
		if leaf.Label == portfolio.LabelWalletAddress {
			walletRevealed = true
			break
		}
	}

	return &PublicShare{
		TokenID:           token.TokenID,
		CommitmentAddress: token.CommitmentAddress,
		CommitmentVersion: token.CommitmentVersion,
		CommittedAt:       time.Unix(record.Timestamp, 0).UTC(),
		RevealedData:      portfolio.FormatPublic(token.RevealedLeaves),
		RevealedLeaves:    token.RevealedLeaves,
		ProofData:         token.ProofData,
		OnLedger: OnLedgerStatus{
			Verified: true,
			Revoked:  record.Revoked,
			Version:  record.Version,
			Root:     record.RootHex(),
		},
		Privacy: PrivacySummary{
			WalletRevealed: walletRevealed,
			TotalLeaves:    token.Metadata.TotalLeaves,
			RevealedCount:  len(token.RevealedLeaves),
		},
	}, nil
}

// Revoke sets the off-ledger revocation flag; owner-only.
func (s *Service) Revoke(_ context.Context, tokenID, ownerAddress string) error {
	if err := s.store.SetRevoked(tokenID, ownerAddress); err != nil {
		return err
	}
	s.log.Info().Str("token", tokenID).Str("owner", ownerAddress).Msg("share token revoked")
	return nil
}

// List returns all of an owner's tokens, newest first.
func (s *Service) List(_ context.Context, ownerAddress string) ([]*Token, error) {
	return s.store.ListByOwner(ownerAddress)
}

// TrackView records a resolution for the owner's analytics. Failures are
// logged, not surfaced: analytics must never break resolution.
func (s *Service) TrackView(tokenID, viewerIP, userAgent string) {
	if err := s.store.AddView(tokenID, viewerIP, userAgent); err != nil {
		s.log.Error().Err(err).Str("token", tokenID).Msg("failed to track share view")
	}
}

// ViewCount returns a token's resolution count.
func (s *Service) ViewCount(tokenID string) (int, error) {
	return s.store.ViewCount(tokenID)
}

// currentRecord reads and decodes the latest record at an address.
func (s *Service) currentRecord(ctx context.Context, address string) (*commitment.Record, error) {
	raw, err := s.oracle.ReadRecord(ctx, address)
	if err != nil {
		return nil, err
	}
	return commitment.Decode(raw)
}
