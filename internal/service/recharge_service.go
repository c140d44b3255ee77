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

var ErrInvalidPayload = errors.New("webhook payload is malformed")

// RechargeService creates payment attempts and reconciles provider webhooks
// onto them exactly once. Redelivery of the same provider event is safe at
// any time, indefinitely.
type RechargeService struct {
	db              *gorm.DB
	redisClient     *redis.Client
	cfg             *config.Config
	logger          *zap.Logger
	ledger          *LedgerService
	accountService  *AccountService
	rechargeRepo    *repository.RechargeRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewRechargeService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, logger *zap.Logger, ledger *LedgerService) *RechargeService {
	return &RechargeService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		logger:          logger,
		ledger:          ledger,
		accountService:  NewAccountService(db),
		rechargeRepo:    repository.NewRechargeRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

type InitiateRequest struct {
	StudentID   int64  `json:"student_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Tickets     int64  `json:"tickets"`
}

// Initiate creates a PENDING recharge and returns it; the recharge number is
// the merchant reference handed to the payment provider.
func (s *RechargeService) Initiate(ctx context.Context, req *InitiateRequest) (*model.TicketRecharge, error) {
	if req.AmountCents <= 0 || req.Tickets <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(req.Currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidPayload)
	}

	// The account exists before any money moves, so the later credit cannot
	// fail on a missing account.
	if _, err := s.accountService.GetOrCreate(ctx, req.StudentID); err != nil {
		return nil, err
	}

	recharge := model.NewTicketRecharge(idgen.GenerateRechargeNo(), req.StudentID, req.AmountCents, req.Currency, req.Tickets)
	if err := s.rechargeRepo.Create(ctx, recharge); err != nil {
		return nil, err
	}

	s.logger.Info("recharge initiated",
		zap.String("recharge_no", recharge.RechargeNo),
		zap.Int64("student_id", req.StudentID),
		zap.Int64("tickets", req.Tickets),
	)
	return recharge, nil
}

type ReconcileRequest struct {
	RechargeNo    string `json:"recharge_no"`
	ExternalTxnID string `json:"external_txn_id"`
	Outcome       string `json:"outcome"` // SUCCESS | FAILED | REFUNDED
	RawPayload    string `json:"raw_payload"`
}

type ReconcileResult struct {
	RechargeNo       string  `json:"recharge_no"`
	Status           string  `json:"status"`
	TransactionNo    *string `json:"transaction_no,omitempty"`
	AlreadyProcessed bool    `json:"already_processed"`
}

var outcomeStatus = map[string]string{
	"SUCCESS":  model.RechargeStatusSuccess,
	"FAILED":   model.RechargeStatusFailed,
	"REFUNDED": model.RechargeStatusRefunded,
}

// Reconcile applies one provider webhook. Idempotency is keyed on the
// external transaction id plus the outcome: redelivering the same event is a
// no-op returning the prior result, while a REFUNDED outcome arriving for a
// SUCCESS recharge is a new event and follows the SUCCESS->REFUNDED edge.
func (s *RechargeService) Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileResult, error) {
	targetStatus, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	// Fast path: this provider event was already applied.
	existing, err := s.rechargeRepo.GetByExternalTxnID(ctx, req.ExternalTxnID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.RechargeNo != req.RechargeNo {
			return nil, fmt.Errorf("%w: external txn id belongs to another recharge", ErrInvalidPayload)
		}
		if existing.Status == targetStatus {
			return priorResult(existing), nil
		}
	}

	holder := strconv.FormatInt(idgen.NextID(), 10)
	reconcileLock := lock.NewReconcileLock(s.redisClient, req.RechargeNo, holder)
	if err := reconcileLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	defer reconcileLock.Unlock(ctx)

	var result *ReconcileResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		recharge, err := s.rechargeRepo.GetByRechargeNoForUpdate(ctx, tx, req.RechargeNo)
		if err != nil {
			return err
		}

		if recharge.ExternalTxnID != nil && *recharge.ExternalTxnID != req.ExternalTxnID {
			return fmt.Errorf("%w: recharge already bound to another external txn id", ErrInvalidPayload)
		}

		// Re-check under the row lock: a concurrent delivery may have won.
		if recharge.Status == targetStatus {
			result = priorResult(recharge)
			return nil
		}

		// Illegal edges are rejected before the ledger is touched, so a
		// REFUNDED webhook for a still-PENDING recharge reports the
		// transition problem, not a balance problem.
		if !model.CanTransitionTo(recharge.Status, targetStatus) {
			return repository.ErrRechargeStatusInvalid
		}

		switch targetStatus {
		case model.RechargeStatusSuccess:
			result, err = s.applySuccess(ctx, tx, recharge, req)
		case model.RechargeStatusFailed:
			result, err = s.applyFailed(ctx, tx, recharge, req)
		case model.RechargeStatusRefunded:
			result, err = s.applyRefunded(ctx, tx, recharge, req)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyProcessed {
		s.logger.Info("recharge reconciled",
			zap.String("recharge_no", req.RechargeNo),
			zap.String("external_txn_id", req.ExternalTxnID),
			zap.String("status", result.Status),
		)
	}
	return result, nil
}

func (s *RechargeService) validate(req *ReconcileRequest) (string, error) {
	if req.RechargeNo == "" || req.ExternalTxnID == "" {
		return "", fmt.Errorf("%w: missing recharge or external txn id", ErrInvalidPayload)
	}
	targetStatus, ok := outcomeStatus[req.Outcome]
	if !ok {
		return "", fmt.Errorf("%w: unknown outcome %q", ErrInvalidPayload, req.Outcome)
	}
	if req.RawPayload != "" && !json.Valid([]byte(req.RawPayload)) {
		return "", fmt.Errorf("%w: raw payload is not valid JSON", ErrInvalidPayload)
	}
	return targetStatus, nil
}

// applySuccess credits the tickets and flips the status in one unit; if the
// credit fails everything rolls back and the recharge stays reconcilable.
func (s *RechargeService) applySuccess(ctx context.Context, tx *gorm.DB, recharge *model.TicketRecharge, req *ReconcileRequest) (*ReconcileResult, error) {
	trans, err := s.ledger.CreditTx(ctx, tx, recharge.StudentID, recharge.Tickets, recharge.RechargeNo,
		fmt.Sprintf("recharge %s: %d tickets", recharge.RechargeNo, recharge.Tickets))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"external_txn_id":       req.ExternalTxnID,
		"raw_payload":           req.RawPayload,
		"paid_at":               &now,
		"credit_transaction_no": trans.TransactionNo,
	}
	if err := s.rechargeRepo.UpdateStatus(ctx, tx, recharge.RechargeNo, recharge.Status, model.RechargeStatusSuccess, updates); err != nil {
		return nil, err
	}

	if err := s.writeRechargeEvent(ctx, tx, recharge, model.RechargeStatusSuccess, req.ExternalTxnID); err != nil {
		return nil, err
	}

	return &ReconcileResult{
		RechargeNo:    recharge.RechargeNo,
		Status:        model.RechargeStatusSuccess,
		TransactionNo: &trans.TransactionNo,
	}, nil
}

func (s *RechargeService) applyFailed(ctx context.Context, tx *gorm.DB, recharge *model.TicketRecharge, req *ReconcileRequest) (*ReconcileResult, error) {
	updates := map[string]interface{}{
		"external_txn_id": req.ExternalTxnID,
		"raw_payload":     req.RawPayload,
	}
	if err := s.rechargeRepo.UpdateStatus(ctx, tx, recharge.RechargeNo, recharge.Status, model.RechargeStatusFailed, updates); err != nil {
		return nil, err
	}

	if err := s.writeRechargeEvent(ctx, tx, recharge, model.RechargeStatusFailed, req.ExternalTxnID); err != nil {
		return nil, err
	}

	return &ReconcileResult{
		RechargeNo: recharge.RechargeNo,
		Status:     model.RechargeStatusFailed,
	}, nil
}

// applyRefunded claws back the credited tickets as a REVERSAL. If the student
// already spent them the whole unit aborts with ErrInsufficientBalance, the
// recharge stays SUCCESS and provider redelivery can retry later.
func (s *RechargeService) applyRefunded(ctx context.Context, tx *gorm.DB, recharge *model.TicketRecharge, req *ReconcileRequest) (*ReconcileResult, error) {
	credit, err := s.transactionRepo.GetCreditByRechargeNo(ctx, tx, recharge.RechargeNo)
	if err != nil {
		return nil, err
	}
	if credit == nil {
		return nil, fmt.Errorf("recharge %s is SUCCESS but has no credit to reverse", recharge.RechargeNo)
	}

	trans, err := s.ledger.ReverseTx(ctx, tx, recharge.StudentID, credit.Amount, recharge.RechargeNo,
		fmt.Sprintf("refund of recharge %s", recharge.RechargeNo))
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"raw_payload": req.RawPayload,
	}
	if err := s.rechargeRepo.UpdateStatus(ctx, tx, recharge.RechargeNo, recharge.Status, model.RechargeStatusRefunded, updates); err != nil {
		return nil, err
	}

	if err := s.writeRechargeEvent(ctx, tx, recharge, model.RechargeStatusRefunded, req.ExternalTxnID); err != nil {
		return nil, err
	}

	return &ReconcileResult{
		RechargeNo:    recharge.RechargeNo,
		Status:        model.RechargeStatusRefunded,
		TransactionNo: &trans.TransactionNo,
	}, nil
}

// GetRecharge looks a recharge up by its number.
func (s *RechargeService) GetRecharge(ctx context.Context, rechargeNo string) (*model.TicketRecharge, error) {
	return s.rechargeRepo.GetByRechargeNo(ctx, rechargeNo)
}

// ListRecharges pages through the student's recharge history, newest first.
func (s *RechargeService) ListRecharges(ctx context.Context, studentID int64, page, pageSize int) ([]*model.TicketRecharge, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.rechargeRepo.ListByStudentID(ctx, studentID, page, pageSize)
}

type rechargeEvent struct {
	Event         string `json:"event"`
	RechargeNo    string `json:"recharge_no"`
	StudentID     int64  `json:"student_id"`
	Tickets       int64  `json:"tickets"`
	ExternalTxnID string `json:"external_txn_id"`
	OccurredAt    string `json:"occurred_at"`
}

func (s *RechargeService) writeRechargeEvent(ctx context.Context, tx *gorm.DB, recharge *model.TicketRecharge, status, externalTxnID string) error {
	payload, err := json.Marshal(rechargeEvent{
		Event:         "RECHARGE_" + status,
		RechargeNo:    recharge.RechargeNo,
		StudentID:     recharge.StudentID,
		Tickets:       recharge.Tickets,
		ExternalTxnID: externalTxnID,
		OccurredAt:    time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal recharge event: %w", err)
	}

	msg := model.NewOutboxMessage(recharge.RechargeNo, s.cfg.Kafka.Topic.RechargeEvents, string(payload))
	return s.outboxRepo.Create(ctx, tx, msg)
}

func priorResult(recharge *model.TicketRecharge) *ReconcileResult {
	return &ReconcileResult{
		RechargeNo:       recharge.RechargeNo,
		Status:           recharge.Status,
		TransactionNo:    recharge.CreditTransactionNo,
		AlreadyProcessed: true,
	}
}
