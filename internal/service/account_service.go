package service

import (
	"context"
	"errors"
	"fmt"

	"ticketledger/internal/model"
	"ticketledger/internal/repository"

	"gorm.io/gorm"
)

var ErrNotAStudent = errors.New("only students own ticket accounts")

// AccountService enforces one account per student and answers balance reads.
type AccountService struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	personRepo      *repository.PersonRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		db:              db,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		personRepo:      repository.NewPersonRepository(db),
	}
}

// GetOrCreate returns the student's account, creating a zero-balance one on
// first need. The owner must exist and hold the STUDENT role.
func (s *AccountService) GetOrCreate(ctx context.Context, studentID int64) (*model.TicketAccount, error) {
	person, err := s.personRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if person.Role != model.RoleStudent {
		return nil, ErrNotAStudent
	}

	return s.accountRepo.GetOrCreate(ctx, studentID)
}

// GetBalance returns the current balance without creating an account.
func (s *AccountService) GetBalance(ctx context.Context, studentID int64) (int64, error) {
	account, err := s.accountRepo.GetByStudentID(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// GetTransaction looks one ledger row up by its number.
func (s *AccountService) GetTransaction(ctx context.Context, transactionNo string) (*model.TicketTransaction, error) {
	return s.transactionRepo.GetByTransactionNo(ctx, transactionNo)
}

// ListTransactions pages through the student's audit trail, newest first.
func (s *AccountService) ListTransactions(ctx context.Context, studentID int64, page, pageSize int) ([]*model.TicketTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	if _, err := s.accountRepo.GetByStudentID(ctx, studentID); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	return s.transactionRepo.ListByStudentID(ctx, studentID, page, pageSize)
}
