package repository

import (
	"context"
	"errors"
	"time"

	"ticketledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound     = errors.New("ticket account not found")
	ErrAccountConflict     = errors.New("concurrent account creation, retry")
	ErrInsufficientBalance = errors.New("insufficient ticket balance")
	ErrStaleAccount        = errors.New("account changed concurrently, retry")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByStudentID(ctx context.Context, studentID int64) (*model.TicketAccount, error) {
	var account model.TicketAccount
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByStudentIDForUpdate locks the account row for the rest of tx.
// Every balance change goes through this lock, so two units of work on the
// same account are serialized while different accounts never block each other.
func (r *AccountRepository) GetByStudentIDForUpdate(ctx context.Context, tx *gorm.DB, studentID int64) (*model.TicketAccount, error) {
	var account model.TicketAccount
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ?", studentID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Deduct subtracts amount, refusing to go below zero even if the caller's
// balance read is stale. The version predicate backs up the row lock.
func (r *AccountRepository) Deduct(ctx context.Context, tx *gorm.DB, accountID int64, amount int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.TicketAccount{}).
		Where("id = ? AND balance >= ? AND version = ?", accountID, amount, version).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var account model.TicketAccount
		if err := tx.WithContext(ctx).Where("id = ?", accountID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if account.Balance < amount {
			return ErrInsufficientBalance
		}
		return ErrStaleAccount
	}

	return nil
}

// Increase adds amount to the balance.
func (r *AccountRepository) Increase(ctx context.Context, tx *gorm.DB, accountID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.TicketAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// GetOrCreate returns the student's account, inserting a zero-balance row if
// absent. Concurrent creation is absorbed by the ON CONFLICT clause; if the
// re-read still misses, the caller gets ErrAccountConflict and should retry.
func (r *AccountRepository) GetOrCreate(ctx context.Context, studentID int64) (*model.TicketAccount, error) {
	account, err := r.GetByStudentID(ctx, studentID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := model.NewTicketAccount(studentID)

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	account, err = r.GetByStudentID(ctx, studentID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrAccountConflict
	}
	return account, err
}
