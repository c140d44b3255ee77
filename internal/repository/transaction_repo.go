package repository

import (
	"context"
	"errors"

	"ticketledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrDuplicateDebit      = errors.New("lesson already debited")
	ErrTransactionNotFound = errors.New("transaction not found")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends one ledger row. Rows are never updated afterwards.
func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.TicketTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// GetDebitByLessonID looks for an existing debit of lessonID on the account.
// Called under the account row lock, so the check cannot race another debit
// of the same account; the (account, lesson) unique index is the backstop.
func (r *TransactionRepository) GetDebitByLessonID(ctx context.Context, tx *gorm.DB, accountID int64, lessonID string) (*model.TicketTransaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.TicketTransaction
	err := tx.WithContext(ctx).
		Where("account_id = ? AND lesson_id = ? AND type = ?", accountID, lessonID, model.TransactionTypeDebit).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.TicketTransaction, error) {
	var trans model.TicketTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// GetCreditByRechargeNo resolves the CREDIT a recharge produced; nil when the
// recharge never credited. The type filter matters because the refund's
// REVERSAL row carries the same recharge reference.
func (r *TransactionRepository) GetCreditByRechargeNo(ctx context.Context, tx *gorm.DB, rechargeNo string) (*model.TicketTransaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.TicketTransaction
	err := tx.WithContext(ctx).
		Where("recharge_no = ? AND type = ?", rechargeNo, model.TransactionTypeCredit).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByStudentID(ctx context.Context, studentID int64, page, pageSize int) ([]*model.TicketTransaction, int64, error) {
	var transactions []*model.TicketTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TicketTransaction{}).Where("student_id = ?", studentID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
