package service

import (
	"context"
	"strings"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
	"github.com/punchamoorthee/ledgerops/internal/models"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

func (s *Service) CreateUser(ctx context.Context, req models.CreateUserRequest) (models.UserResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.UserResponse{}, ErrNameRequired
	}

	u := domain.User{ID: s.newID(), Name: name, CreatedAt: s.now()}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertUser(ctx, u); err != nil {
			return err
		}
		_, err := s.ledger.EnsureEntityAccount(ctx, tx, ledger.UserWalletBucket, u.ID)
		return err
	})
	if err != nil {
		return models.UserResponse{}, err
	}
	return models.UserResponse{UserID: u.ID, Name: u.Name}, nil
}

// FundWallet credits the user's wallet against platform settlement cash.
func (s *Service) FundWallet(ctx context.Context, req models.FundWalletRequest) (models.FundWalletResponse, error) {
	if req.UserID == "" || req.Amount <= 0 {
		return models.FundWalletResponse{}, ErrUserAmountRequired
	}

	resp := models.FundWalletResponse{OK: true}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		wallet, err := s.requireUserWallet(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		resp.JournalID, err = s.ledger.Post(ctx, tx, ledger.RefWalletFund, req.UserID, "Fund user wallet",
			ledger.Dr(ledger.PlatformSettlementCash, req.Amount),
			ledger.Cr(wallet, req.Amount),
		)
		return err
	})
	if err != nil {
		return models.FundWalletResponse{}, err
	}
	return resp, nil
}

func (s *Service) requireUserWallet(ctx context.Context, tx store.Tx, userID string) (string, error) {
	if _, err := tx.GetUser(ctx, userID); err != nil {
		return "", mapNotFound(err, ErrUserNotFound)
	}
	return s.ledger.EnsureEntityAccount(ctx, tx, ledger.UserWalletBucket, userID)
}
