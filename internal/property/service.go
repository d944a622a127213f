package property

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evcraddock/estate-market/internal/chain"
)

// TokenReader is the read side of the property-token contract.
// *chain.PropertyToken satisfies it.
type TokenReader interface {
	EachTokenID(ctx context.Context, fn func(id *big.Int) error) error
	Property(ctx context.Context, tokenID *big.Int) (*chain.TokenProperty, error)
	OwnedTokens(ctx context.Context, owner common.Address) ([]*big.Int, error)
}

// Service mirrors on-chain property tokens into the local repository.
type Service struct {
	repo  *Repository
	token TokenReader
}

// NewService creates a property service. token may be nil when no chain
// is configured; chain-backed operations then return chain.ErrNoBackend.
func NewService(repo *Repository, token TokenReader) *Service {
	return &Service{repo: repo, token: token}
}

// Repository returns the underlying repository.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Online reports whether a chain is configured for token reads.
func (s *Service) Online() bool {
	return s.token != nil
}

// SyncResult reports what a Sync pass did.
type SyncResult struct {
	Synced  int `json:"synced"`
	Removed int `json:"removed"`
}

// Sync imports every token from the chain. Burned tokens are removed locally.
func (s *Service) Sync(ctx context.Context) (*SyncResult, error) {
	if s.token == nil {
		return nil, chain.ErrNoBackend
	}

	var (
		result SyncResult
		tokens int
	)
	err := s.token.EachTokenID(ctx, func(id *big.Int) error {
		tokens++
		_, err := s.SyncToken(ctx, id)
		if errors.Is(err, ErrNotFound) {
			result.Removed++
			return nil
		}
		if err != nil {
			return err
		}
		result.Synced++
		return nil
	})
	if err != nil {
		return &result, fmt.Errorf("syncing tokens: %w", err)
	}

	slog.Info("synced properties", "tokens", tokens, "synced", result.Synced, "removed", result.Removed)
	return &result, nil
}

// SyncToken reads one token from the chain and stores it. A burned token
// is deleted locally and reported as ErrNotFound.
func (s *Service) SyncToken(ctx context.Context, tokenID *big.Int) (*Property, error) {
	if s.token == nil {
		return nil, chain.ErrNoBackend
	}

	tp, err := s.token.Property(ctx, tokenID)
	if chain.IsRevert(err) {
		if derr := s.repo.DeleteByTokenID(tokenID.String()); derr != nil {
			return nil, derr
		}
		return nil, fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading token %s: %w", tokenID, err)
	}

	p, err := FromToken(tp)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.Upsert(p)
	if err != nil {
		return nil, fmt.Errorf("saving token %s: %w", tokenID, err)
	}
	return saved, nil
}

// Owned enumerates the tokens owner holds on chain and returns their local
// records, importing tokens that have not been synced yet.
func (s *Service) Owned(ctx context.Context, owner string) ([]*Property, error) {
	if s.token == nil {
		return nil, chain.ErrNoBackend
	}

	addr, err := chain.ParseAddress(owner)
	if err != nil {
		return nil, err
	}

	ids, err := s.token.OwnedTokens(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("enumerating owned tokens: %w", err)
	}

	properties := make([]*Property, 0, len(ids))
	for _, id := range ids {
		p, err := s.repo.GetByTokenID(id.String())
		switch {
		case errors.Is(err, ErrNotFound):
			p, err = s.SyncToken(ctx, id)
			if err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		case !sameAddress(p.Owner, addr):
			if err := s.repo.UpdateOwner(p.ID, addr.Hex()); err != nil {
				return nil, err
			}
			p.Owner = addr.Hex()
		}
		properties = append(properties, p)
	}
	return properties, nil
}

// FromToken converts an on-chain record into a Property. Metadata failing
// the schema is kept out of the record and logged.
func FromToken(tp *chain.TokenProperty) (*Property, error) {
	if tp.Valuation == nil || !tp.Valuation.IsInt64() || tp.Valuation.Sign() < 0 {
		return nil, fmt.Errorf("token %s: valuation %v out of range", tp.TokenID, tp.Valuation)
	}

	metadata := json.RawMessage(tp.Metadata)
	if err := ValidateMetadata(metadata); err != nil {
		slog.Warn("discarding token metadata", "token_id", tp.TokenID.String(), "err", err)
		metadata = json.RawMessage("{}")
	}
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	fields := parseMetadata(metadata)

	p := &Property{
		TokenID:   tp.TokenID.String(),
		Name:      tp.Name,
		Location:  parseLocation(tp.Location, fields),
		Valuation: tp.Valuation.Int64(),
		Owner:     tp.Owner.Hex(),
		Metadata:  metadata,
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("Property #%s", p.TokenID)
	}
	p.applyDetails(fields)
	return p, nil
}

func sameAddress(stored string, addr common.Address) bool {
	return common.IsHexAddress(stored) && common.HexToAddress(stored) == addr
}
