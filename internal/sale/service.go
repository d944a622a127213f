package sale

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/evcraddock/estate-market/internal/events"
)

// Service applies marketplace rules to sales and announces changes.
type Service struct {
	repo      *Repository
	publisher events.Publisher
}

// NewService creates a sale service. A nil publisher discards events.
func NewService(repo *Repository, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{repo: repo, publisher: publisher}
}

// Repository returns the underlying repository.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Create opens a pending offer from buyer on a property.
func (s *Service) Create(ctx context.Context, propertyID int64, buyer string, price int64) (*Sale, error) {
	sale, err := s.repo.Create(propertyID, buyer, price)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.SaleCreated, sale)
	return sale, nil
}

// Complete settles a sale. Only the seller may accept an offer.
func (s *Service) Complete(ctx context.Context, id, actor, txHash string) (*Sale, error) {
	current, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(current.Seller, actor) {
		return nil, fmt.Errorf("only the seller can complete sale %s: %w", id, ErrForbidden)
	}

	sale, err := s.repo.Complete(id, txHash)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.SaleCompleted, sale)
	return sale, nil
}

// Cancel withdraws a sale. Either party may cancel.
func (s *Service) Cancel(ctx context.Context, id, actor string) (*Sale, error) {
	current, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(current.Seller, actor) && !strings.EqualFold(current.Buyer, actor) {
		return nil, fmt.Errorf("only the buyer or seller can cancel sale %s: %w", id, ErrForbidden)
	}

	sale, err := s.repo.Cancel(id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.SaleCancelled, sale)
	return sale, nil
}

// publish logs and drops failures; the sale is already committed.
func (s *Service) publish(ctx context.Context, eventType string, sale *Sale) {
	if err := s.publisher.Publish(ctx, eventType, sale); err != nil {
		slog.Error("publishing sale event", "event", eventType, "sale_id", sale.ID, "err", err)
	}
}
