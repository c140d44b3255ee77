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
	ErrRechargeNotFound      = errors.New("recharge not found")
	ErrRechargeStatusInvalid = errors.New("recharge status transition not allowed")
)

type RechargeRepository struct {
	db *gorm.DB
}

func NewRechargeRepository(db *gorm.DB) *RechargeRepository {
	return &RechargeRepository{db: db}
}

func (r *RechargeRepository) Create(ctx context.Context, recharge *model.TicketRecharge) error {
	return r.db.WithContext(ctx).Create(recharge).Error
}

func (r *RechargeRepository) GetByRechargeNo(ctx context.Context, rechargeNo string) (*model.TicketRecharge, error) {
	var recharge model.TicketRecharge
	err := r.db.WithContext(ctx).Where("recharge_no = ?", rechargeNo).First(&recharge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRechargeNotFound
		}
		return nil, err
	}
	return &recharge, nil
}

// GetByRechargeNoForUpdate locks the recharge row so concurrent webhook
// deliveries for the same recharge are serialized inside tx.
func (r *RechargeRepository) GetByRechargeNoForUpdate(ctx context.Context, tx *gorm.DB, rechargeNo string) (*model.TicketRecharge, error) {
	var recharge model.TicketRecharge
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("recharge_no = ?", rechargeNo).
		First(&recharge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRechargeNotFound
		}
		return nil, err
	}
	return &recharge, nil
}

// GetByExternalTxnID resolves the provider's transaction id; nil when unseen.
func (r *RechargeRepository) GetByExternalTxnID(ctx context.Context, externalTxnID string) (*model.TicketRecharge, error) {
	var recharge model.TicketRecharge
	err := r.db.WithContext(ctx).Where("external_txn_id = ?", externalTxnID).First(&recharge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &recharge, nil
}

// UpdateStatus moves the recharge along a ValidRechargeTransitions edge with a
// compare-and-set on the previous status; zero rows affected means someone
// else already moved it.
func (r *RechargeRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, rechargeNo string, fromStatus, toStatus string, updates map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrRechargeStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = toStatus
	updates["updated_at"] = time.Now()

	result := tx.WithContext(ctx).
		Model(&model.TicketRecharge{}).
		Where("recharge_no = ? AND status = ?", rechargeNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrRechargeStatusInvalid
	}

	return nil
}

// GetExpiredPending returns PENDING recharges initiated before cutoff.
func (r *RechargeRepository) GetExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*model.TicketRecharge, error) {
	var recharges []*model.TicketRecharge
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.RechargeStatusPending, cutoff).
		Limit(limit).
		Find(&recharges).Error
	return recharges, err
}

func (r *RechargeRepository) ListByStudentID(ctx context.Context, studentID int64, page, pageSize int) ([]*model.TicketRecharge, int64, error) {
	var recharges []*model.TicketRecharge
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TicketRecharge{}).Where("student_id = ?", studentID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&recharges).Error

	return recharges, total, err
}
