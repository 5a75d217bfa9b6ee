package accounts

import (
	"context"
	"errors"
)

// Service owns the savings account lifecycle. Balance mutation lives in
// the repository primitives and is always driven by the ledger, credit
// or loans services inside their own transactions.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Open creates a savings account for an owner. One account per owner.
func (s *Service) Open(ctx context.Context, ownerID int64) (Account, error) {
	if _, err := s.repo.GetByOwner(ctx, ownerID); err == nil {
		return Account{}, ErrOwnerHasAccount
	} else if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}
	return s.repo.Create(ctx, ownerID)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByOwner(ctx context.Context, ownerID int64) (Account, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}
