package service

import (
	"testing"
	"time"

	"ticketledger/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gdb, mock
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				BalanceEvents:  "ticket.balance.events",
				RechargeEvents: "ticket.recharge.events",
			},
		},
		Business: config.BusinessConfig{
			RechargeTimeoutMinutes: 30,
			MaxRetryCount:          5,
		},
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func accountColumns() []string {
	return []string{"id", "student_id", "balance", "version", "created_at", "updated_at"}
}

func accountRow(mockRows *sqlmock.Rows, id, studentID, balance int64, version int) *sqlmock.Rows {
	now := time.Now()
	return mockRows.AddRow(id, studentID, balance, version, now, now)
}
