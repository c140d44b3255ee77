package job

import (
	"context"
	"time"

	"ticketledger/internal/config"
	"ticketledger/internal/model"
	"ticketledger/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RechargeTimeoutJob fails PENDING recharges the provider never confirmed,
// so abandoned purchases do not linger forever. A webhook that arrives after
// expiry is rejected by the status transition table, which is the safe side:
// the provider sees the failure and refunds through its own channel.
type RechargeTimeoutJob struct {
	db           *gorm.DB
	rechargeRepo *repository.RechargeRepository
	cfg          *config.Config
	logger       *zap.Logger
	interval     time.Duration
	batchSize    int
}

func NewRechargeTimeoutJob(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *RechargeTimeoutJob {
	return &RechargeTimeoutJob{
		db:           db,
		rechargeRepo: repository.NewRechargeRepository(db),
		cfg:          cfg,
		logger:       logger,
		interval:     time.Minute,
		batchSize:    100,
	}
}

func (j *RechargeTimeoutJob) Start(ctx context.Context) {
	j.logger.Info("recharge timeout job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("recharge timeout job stopped")
			return
		case <-ticker.C:
			j.closeExpiredRecharges(ctx)
		}
	}
}

func (j *RechargeTimeoutJob) closeExpiredRecharges(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(j.cfg.Business.RechargeTimeoutMinutes) * time.Minute)
	recharges, err := j.rechargeRepo.GetExpiredPending(ctx, cutoff, j.batchSize)
	if err != nil {
		j.logger.Error("query expired recharges", zap.Error(err))
		return
	}

	for _, recharge := range recharges {
		updates := map[string]interface{}{
			"raw_payload": `{"reason":"expired"}`,
		}
		err := j.rechargeRepo.UpdateStatus(ctx, nil, recharge.RechargeNo, model.RechargeStatusPending, model.RechargeStatusFailed, updates)
		if err != nil {
			// Lost the race to a late webhook; nothing to do.
			j.logger.Warn("expire recharge", zap.String("recharge_no", recharge.RechargeNo), zap.Error(err))
			continue
		}
		j.logger.Info("recharge expired",
			zap.String("recharge_no", recharge.RechargeNo),
			zap.Int64("student_id", recharge.StudentID),
		)
	}
}
