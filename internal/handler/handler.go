package handler

import (
	"errors"
	"strconv"

	"ticketledger/internal/config"
	"ticketledger/internal/repository"
	"ticketledger/internal/service"
	"ticketledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	accountService  *service.AccountService
	ledgerService   *service.LedgerService
	rechargeService *service.RechargeService
	personService   *service.PersonService
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Handler {
	ledger := service.NewLedgerService(db, rdb, cfg, logger)
	return &Handler{
		accountService:  service.NewAccountService(db),
		ledgerService:   ledger,
		rechargeService: service.NewRechargeService(db, rdb, cfg, logger, ledger),
		personService:   service.NewPersonService(db),
	}
}

// businessError maps service sentinels to stable business codes; anything
// unrecognized is a server error.
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, "ticket account not found")
	case errors.Is(err, repository.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, "insufficient tickets")
	case errors.Is(err, repository.ErrDuplicateDebit):
		response.BusinessError(c, response.CodeDuplicateDebit, "lesson already debited")
	case errors.Is(err, repository.ErrAccountConflict):
		response.BusinessError(c, response.CodeAccountConflict, "account creation raced, retry")
	case errors.Is(err, repository.ErrRechargeNotFound):
		response.BusinessError(c, response.CodeRechargeNotFound, "recharge not found")
	case errors.Is(err, repository.ErrTransactionNotFound):
		response.BusinessError(c, response.CodeNotFound, "transaction not found")
	case errors.Is(err, repository.ErrRechargeStatusInvalid):
		response.BusinessError(c, response.CodeStatusInvalid, "recharge status does not allow this outcome")
	case errors.Is(err, service.ErrEmailTaken):
		response.BusinessError(c, response.CodeEmailTaken, "email already registered")
	case errors.Is(err, service.ErrInvalidPayload),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidLesson),
		errors.Is(err, service.ErrNotAStudent),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, repository.ErrPersonNotFound):
		response.BusinessError(c, response.CodeInvalidPayload, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// Account endpoints
// ============================================================

// GetBalance returns the student's current ticket balance.
// GET /api/v1/account/balance?student_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Query("student_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid student_id")
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), studentID)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"student_id": studentID,
		"balance":    balance,
	})
}

// ListTransactions pages through the student's ledger, newest first.
// GET /api/v1/account/transactions?student_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Query("student_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid student_id")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	transactions, total, err := h.accountService.ListTransactions(c.Request.Context(), studentID, page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetTransaction returns one ledger row by its number.
// GET /api/v1/account/transaction?transaction_no=xxx
func (h *Handler) GetTransaction(c *gin.Context) {
	transactionNo := c.Query("transaction_no")
	if transactionNo == "" {
		response.ParamError(c, "transaction_no is required")
		return
	}

	trans, err := h.accountService.GetTransaction(c.Request.Context(), transactionNo)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, trans)
}

// ============================================================
// Person registry
// ============================================================

type RegisterPersonRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role" binding:"required"`
	RoleData string `json:"role_data"`
}

// RegisterPerson creates a person record.
// POST /api/v1/person/register
func (h *Handler) RegisterPerson(c *gin.Context) {
	var req RegisterPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	person, err := h.personService.Register(c.Request.Context(), &service.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
		RoleData: req.RoleData,
	})
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, person)
}

// GetPerson returns one person by id.
// GET /api/v1/person/detail?id=xxx
func (h *Handler) GetPerson(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid id")
		return
	}

	person, err := h.personService.GetPerson(c.Request.Context(), id)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, person)
}

// ============================================================
// Lesson consumption
// ============================================================

// ConsumeLessonRequest is sent by the lesson-booking service when a lesson
// is consumed. LessonID doubles as the idempotency key for the debit.
type ConsumeLessonRequest struct {
	StudentID   int64  `json:"student_id" binding:"required"`
	Tickets     int64  `json:"tickets" binding:"required,gt=0"`
	LessonID    string `json:"lesson_id" binding:"required"`
	Description string `json:"description"`
}

// ConsumeLesson debits tickets for one lesson, at most once per lesson.
// POST /api/v1/lesson/consume
func (h *Handler) ConsumeLesson(c *gin.Context) {
	var req ConsumeLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	trans, err := h.ledgerService.Debit(c.Request.Context(), req.StudentID, req.Tickets, req.LessonID, req.Description)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_no": trans.TransactionNo,
		"balance_before": trans.BalanceBefore,
		"balance_after":  trans.BalanceAfter,
	})
}

// ============================================================
// Recharge endpoints
// ============================================================

type InitiateRechargeRequest struct {
	StudentID   int64  `json:"student_id" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency    string `json:"currency" binding:"required,len=3"`
	Tickets     int64  `json:"tickets" binding:"required,gt=0"`
}

// InitiateRecharge creates a PENDING recharge and returns its number for the
// caller to hand to the payment provider.
// POST /api/v1/recharge/initiate
func (h *Handler) InitiateRecharge(c *gin.Context) {
	var req InitiateRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	recharge, err := h.rechargeService.Initiate(c.Request.Context(), &service.InitiateRequest{
		StudentID:   req.StudentID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Tickets:     req.Tickets,
	})
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"recharge_no": recharge.RechargeNo,
		"status":      recharge.Status,
	})
}

// RechargeWebhookRequest is the provider callback after upstream signature
// verification.
type RechargeWebhookRequest struct {
	RechargeNo    string `json:"recharge_no" binding:"required"`
	ExternalTxnID string `json:"external_txn_id" binding:"required"`
	Outcome       string `json:"outcome" binding:"required"`
	RawPayload    string `json:"raw_payload"`
}

// RechargeWebhook reconciles one provider event, idempotently.
// POST /api/v1/recharge/webhook
func (h *Handler) RechargeWebhook(c *gin.Context) {
	var req RechargeWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.rechargeService.Reconcile(c.Request.Context(), &service.ReconcileRequest{
		RechargeNo:    req.RechargeNo,
		ExternalTxnID: req.ExternalTxnID,
		Outcome:       req.Outcome,
		RawPayload:    req.RawPayload,
	})
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// ListRecharges pages through the student's recharge history.
// GET /api/v1/recharge/list?student_id=xxx&page=1&page_size=20
func (h *Handler) ListRecharges(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Query("student_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid student_id")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	recharges, total, err := h.rechargeService.ListRecharges(c.Request.Context(), studentID, page, pageSize)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      recharges,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetRecharge returns one recharge by number.
// GET /api/v1/recharge/detail?recharge_no=xxx
func (h *Handler) GetRecharge(c *gin.Context) {
	rechargeNo := c.Query("recharge_no")
	if rechargeNo == "" {
		response.ParamError(c, "recharge_no is required")
		return
	}

	recharge, err := h.rechargeService.GetRecharge(c.Request.Context(), rechargeNo)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, recharge)
}
