package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ticketledger/internal/config"
	"ticketledger/internal/infrastructure/lock"
	"ticketledger/internal/model"
	"ticketledger/internal/repository"
	"ticketledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrInvalidLesson = errors.New("lesson id must not be empty")
)

// LedgerService is the only writer of account balances. Every change commits
// a transaction row, the balance update and a notification outbox row as one
// unit; a concurrent reader can never observe a partial write.
type LedgerService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	logger          *zap.Logger
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		logger:          logger,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type balanceEvent struct {
	Event         string  `json:"event"`
	StudentID     int64   `json:"student_id"`
	TransactionNo string  `json:"transaction_no"`
	Amount        int64   `json:"amount"`
	BalanceAfter  int64   `json:"balance_after"`
	LessonID      *string `json:"lesson_id,omitempty"`
	RechargeNo    *string `json:"recharge_no,omitempty"`
	OccurredAt    string  `json:"occurred_at"`
}

// Debit consumes tickets for a lesson. At most one debit per (account,
// lesson) ever commits: a repeat fails with ErrDuplicateDebit and writes
// nothing. A debit that would push the balance below zero fails with
// ErrInsufficientBalance and writes nothing.
func (s *LedgerService) Debit(ctx context.Context, studentID, amount int64, lessonID, description string) (*model.TicketTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if lessonID == "" {
		return nil, ErrInvalidLesson
	}

	// Holder token is unique per acquisition so an expired holder's release
	// cannot delete a lock someone else acquired since.
	holder := strconv.FormatInt(idgen.NextID(), 10)
	accountLock := lock.NewAccountLock(s.redisClient, studentID, holder)
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("acquire account lock: %w", err)
	}
	defer accountLock.Unlock(ctx)

	var trans *model.TicketTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = s.DebitTx(ctx, tx, studentID, amount, lessonID, description)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tickets debited",
		zap.Int64("student_id", studentID),
		zap.Int64("amount", amount),
		zap.String("lesson_id", lessonID),
		zap.String("transaction_no", trans.TransactionNo),
		zap.Int64("balance_after", trans.BalanceAfter),
	)
	return trans, nil
}

// DebitTx runs the debit inside a caller-supplied DB transaction.
func (s *LedgerService) DebitTx(ctx context.Context, tx *gorm.DB, studentID, amount int64, lessonID, description string) (*model.TicketTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if lessonID == "" {
		return nil, ErrInvalidLesson
	}

	account, err := s.accountRepo.GetByStudentIDForUpdate(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}

	// The account row is locked, so this check cannot race another debit of
	// the same account. The unique index backs it up anyway.
	existing, err := s.transactionRepo.GetDebitByLessonID(ctx, tx, account.ID, lessonID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, repository.ErrDuplicateDebit
	}

	if account.Balance < amount {
		return nil, repository.ErrInsufficientBalance
	}

	if err := s.accountRepo.Deduct(ctx, tx, account.ID, amount, account.Version); err != nil {
		return nil, err
	}

	trans := &model.TicketTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		AccountID:     account.ID,
		StudentID:     studentID,
		Type:          model.TransactionTypeDebit,
		Amount:        amount,
		LessonID:      &lessonID,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance - amount,
		Description:   description,
		CreatedAt:     time.Now(),
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, err
	}

	if err := s.writeEvent(ctx, tx, "TICKET_DEBIT", trans); err != nil {
		return nil, err
	}

	return trans, nil
}

// Credit adds tickets from a successful recharge.
func (s *LedgerService) Credit(ctx context.Context, studentID, amount int64, rechargeNo, description string) (*model.TicketTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	holder := strconv.FormatInt(idgen.NextID(), 10)
	accountLock := lock.NewAccountLock(s.redisClient, studentID, holder)
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("acquire account lock: %w", err)
	}
	defer accountLock.Unlock(ctx)

	var trans *model.TicketTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = s.CreditTx(ctx, tx, studentID, amount, rechargeNo, description)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tickets credited",
		zap.Int64("student_id", studentID),
		zap.Int64("amount", amount),
		zap.String("recharge_no", rechargeNo),
		zap.String("transaction_no", trans.TransactionNo),
		zap.Int64("balance_after", trans.BalanceAfter),
	)
	return trans, nil
}

// CreditTx runs the credit inside a caller-supplied DB transaction, so the
// reconciler can couple it atomically with the recharge status transition.
func (s *LedgerService) CreditTx(ctx context.Context, tx *gorm.DB, studentID, amount int64, rechargeNo, description string) (*model.TicketTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.accountRepo.GetByStudentIDForUpdate(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}

	if err := s.accountRepo.Increase(ctx, tx, account.ID, amount); err != nil {
		return nil, err
	}

	trans := &model.TicketTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		AccountID:     account.ID,
		StudentID:     studentID,
		Type:          model.TransactionTypeCredit,
		Amount:        amount,
		RechargeNo:    &rechargeNo,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + amount,
		Description:   description,
		CreatedAt:     time.Now(),
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, err
	}

	if err := s.writeEvent(ctx, tx, "TICKET_CREDIT", trans); err != nil {
		return nil, err
	}

	return trans, nil
}

// ReverseTx claws back a refunded recharge's credit as a REVERSAL row. It
// refuses to drive the balance negative; the caller decides what to do with
// the recharge in that case.
func (s *LedgerService) ReverseTx(ctx context.Context, tx *gorm.DB, studentID, amount int64, rechargeNo, description string) (*model.TicketTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.accountRepo.GetByStudentIDForUpdate(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}

	if account.Balance < amount {
		return nil, repository.ErrInsufficientBalance
	}

	if err := s.accountRepo.Deduct(ctx, tx, account.ID, amount, account.Version); err != nil {
		return nil, err
	}

	trans := &model.TicketTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		AccountID:     account.ID,
		StudentID:     studentID,
		Type:          model.TransactionTypeReversal,
		Amount:        amount,
		RechargeNo:    &rechargeNo,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance - amount,
		Description:   description,
		CreatedAt:     time.Now(),
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, err
	}

	if err := s.writeEvent(ctx, tx, "TICKET_REVERSAL", trans); err != nil {
		return nil, err
	}

	return trans, nil
}

// writeEvent stages the notification in the outbox, inside the same DB
// transaction as the ledger write. Delivery happens later and its failure
// never rolls back a committed transaction.
func (s *LedgerService) writeEvent(ctx context.Context, tx *gorm.DB, event string, trans *model.TicketTransaction) error {
	payload, err := json.Marshal(balanceEvent{
		Event:         event,
		StudentID:     trans.StudentID,
		TransactionNo: trans.TransactionNo,
		Amount:        trans.Amount,
		BalanceAfter:  trans.BalanceAfter,
		LessonID:      trans.LessonID,
		RechargeNo:    trans.RechargeNo,
		OccurredAt:    trans.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal balance event: %w", err)
	}

	msg := model.NewOutboxMessage(trans.TransactionNo, s.cfg.Kafka.Topic.BalanceEvents, string(payload))
	return s.outboxRepo.Create(ctx, tx, msg)
}
