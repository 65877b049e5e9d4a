package handler

import (
	"errors"
	"strconv"
	"strings"

	"loanbook/internal/repository"
	"loanbook/internal/service"
	"loanbook/pkg/dates"
	"loanbook/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	orderService     *service.OrderService
	incomeService    *service.IncomeService
	undoService      *service.UndoService
	reconcileService *service.ReconcileService
	ledgerRepo       *repository.LedgerRepository
	operationRepo    *repository.OperationRepository
	calendar         *dates.Calendar
}

// NewHandler 创建处理器实例
func NewHandler(
	orderService *service.OrderService,
	incomeService *service.IncomeService,
	undoService *service.UndoService,
	reconcileService *service.ReconcileService,
	ledgerRepo *repository.LedgerRepository,
	operationRepo *repository.OperationRepository,
	calendar *dates.Calendar,
) *Handler {
	return &Handler{
		orderService:     orderService,
		incomeService:    incomeService,
		undoService:      undoService,
		reconcileService: reconcileService,
		ledgerRepo:       ledgerRepo,
		operationRepo:    operationRepo,
		calendar:         calendar,
	}
}

// writeError 业务错误到响应码的统一映射
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		stateErr      *service.StateError
		partialErr    *service.PartialWriteError
	)
	switch {
	case errors.As(err, &validationErr):
		response.ParamError(c, err.Error())
	case errors.As(err, &stateErr):
		response.BusinessError(c, response.CodeOrderStateInvalid, err.Error())
	case errors.As(err, &partialErr):
		response.BusinessError(c, response.CodePartialWrite, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	case errors.Is(err, repository.ErrOrderExists):
		response.BusinessError(c, response.CodeOrderExists, err.Error())
	case errors.Is(err, repository.ErrOrderStateInvalid):
		response.BusinessError(c, response.CodeOrderStateInvalid, err.Error())
	case errors.Is(err, service.ErrSettlementInvalid):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrNothingToUndo):
		response.BusinessError(c, response.CodeNothingToUndo, err.Error())
	case errors.Is(err, service.ErrUndoLimitReached):
		response.BusinessError(c, response.CodeUndoLimitReached, err.Error())
	case errors.Is(err, service.ErrUndoChatMismatch):
		response.BusinessError(c, response.CodeUndoChatMismatch, err.Error())
	case errors.Is(err, service.ErrUndoOfUndo), errors.Is(err, service.ErrUndoBusy):
		response.BusinessError(c, response.CodeBusinessError, err.Error())
	case errors.Is(err, repository.ErrInvalidField), errors.Is(err, repository.ErrInvalidScope):
		response.BusinessError(c, response.CodeInvalidField, err.Error())
	case errors.Is(err, repository.ErrOperationNotFound):
		response.BusinessError(c, response.CodeBusinessError, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 订单生命周期接口
// ============================================================

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	UserID       int64           `json:"user_id" binding:"required"`
	ChatID       int64           `json:"chat_id" binding:"required"`
	OrderID      string          `json:"order_id"`
	GroupID      string          `json:"group_id" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Customer     string          `json:"customer" binding:"required"`
	Date         string          `json:"date"`
	InitialState string          `json:"initial_state"`
	Historical   bool            `json:"historical"`
}

// CreateOrder 创建订单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), service.CreateOrderRequest{
		UserID:       req.UserID,
		ChatID:       req.ChatID,
		OrderID:      req.OrderID,
		GroupID:      req.GroupID,
		Amount:       req.Amount,
		Customer:     req.Customer,
		Date:         req.Date,
		InitialState: req.InitialState,
		Historical:   req.Historical,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// ChatActionRequest 按群聊定位订单的通用请求
type ChatActionRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	ChatID int64 `json:"chat_id" binding:"required"`
}

// MarkOverdue 标记逾期
// POST /api/v1/order/overdue
func (h *Handler) MarkOverdue(c *gin.Context) {
	var req ChatActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.orderService.MarkOverdue(c.Request.Context(), req.UserID, req.ChatID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// MarkNormal 恢复正常
// POST /api/v1/order/normal
func (h *Handler) MarkNormal(c *gin.Context) {
	var req ChatActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.orderService.MarkNormal(c.Request.Context(), req.UserID, req.ChatID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// MarkBreach 标记违约
// POST /api/v1/order/breach
func (h *Handler) MarkBreach(c *gin.Context) {
	var req ChatActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.orderService.MarkBreach(c.Request.Context(), req.UserID, req.ChatID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// CompleteOrder 完成订单
// POST /api/v1/order/complete
func (h *Handler) CompleteOrder(c *gin.Context) {
	var req ChatActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.orderService.CompleteOrder(c.Request.Context(), req.UserID, req.ChatID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// CompleteBreachRequest 违约完成请求
type CompleteBreachRequest struct {
	UserID     int64           `json:"user_id" binding:"required"`
	ChatID     int64           `json:"chat_id" binding:"required"`
	Settlement decimal.Decimal `json:"settlement" binding:"required"`
}

// CompleteBreach 违约完成
// POST /api/v1/order/breach-complete
func (h *Handler) CompleteBreach(c *gin.Context) {
	var req CompleteBreachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.orderService.CompleteBreach(c.Request.Context(), req.UserID, req.ChatID, req.Settlement)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// ChangeGroupRequest 归属变更请求
type ChangeGroupRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	ChatID     int64  `json:"chat_id" binding:"required"`
	NewGroupID string `json:"new_group_id" binding:"required"`
}

// ChangeOrderGroup 变更订单归属ID
// POST /api/v1/order/change-group
func (h *Handler) ChangeOrderGroup(c *gin.Context) {
	var req ChangeGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.orderService.ChangeOrderGroup(c.Request.Context(), req.UserID, req.ChatID, req.NewGroupID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// GetCurrentOrder 查询群聊当前活跃订单
// GET /api/v1/order/current?chat_id=xxx
func (h *Handler) GetCurrentOrder(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Query("chat_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "chat_id 参数错误")
		return
	}
	order, err := h.orderService.GetCurrentOrder(c.Request.Context(), chatID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// SearchOrders 多条件搜索订单
// GET /api/v1/order/search?group_id=&state=&states=&customer=&weekday_group=&start_date=&end_date=
// states 支持逗号分隔的多状态过滤，如 states=normal,overdue
func (h *Handler) SearchOrders(c *gin.Context) {
	var states []string
	if raw := c.Query("states"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				states = append(states, s)
			}
		}
	}
	orders, err := h.orderService.SearchOrders(c.Request.Context(), repository.SearchCriteria{
		GroupID:      c.Query("group_id"),
		State:        c.Query("state"),
		States:       states,
		Customer:     c.Query("customer"),
		WeekdayGroup: c.Query("weekday_group"),
		StartDate:    c.Query("start_date"),
		EndDate:      c.Query("end_date"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, orders)
}

// ============================================================
// 收入与开销接口
// ============================================================

// AmountRequest 带金额的群聊操作请求
type AmountRequest struct {
	UserID int64           `json:"user_id" binding:"required"`
	ChatID int64           `json:"chat_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// RecordInterest 记录利息收入
// POST /api/v1/income/interest
func (h *Handler) RecordInterest(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	record, err := h.incomeService.RecordInterest(c.Request.Context(), req.UserID, req.ChatID, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, record)
}

// ReducePrincipal 本金减少
// POST /api/v1/income/principal-reduction
func (h *Handler) ReducePrincipal(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	record, err := h.incomeService.ReducePrincipal(c.Request.Context(), req.UserID, req.ChatID, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, record)
}

// QueryIncomes 查询收入明细
// GET /api/v1/income/records?start_date=&end_date=&type=&customer=&group_id=&order_id=
func (h *Handler) QueryIncomes(c *gin.Context) {
	records, err := h.incomeService.QueryIncomes(c.Request.Context(), repository.IncomeFilter{
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
		Type:      c.Query("type"),
		Customer:  c.Query("customer"),
		GroupID:   c.Query("group_id"),
		OrderID:   c.Query("order_id"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, records)
}

// ExpenseRequest 开销记录请求
type ExpenseRequest struct {
	UserID int64           `json:"user_id" binding:"required"`
	ChatID int64           `json:"chat_id" binding:"required"`
	Type   string          `json:"type" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Note   string          `json:"note"`
}

// RecordExpense 记录开销
// POST /api/v1/expense/create
func (h *Handler) RecordExpense(c *gin.Context) {
	var req ExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	record, err := h.incomeService.RecordExpense(c.Request.Context(), req.UserID, req.ChatID, req.Type, req.Amount, req.Note)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, record)
}

// QueryExpenses 查询开销明细
// GET /api/v1/expense/list?start_date=&end_date=&type=
func (h *Handler) QueryExpenses(c *gin.Context) {
	records, err := h.incomeService.QueryExpenses(c.Request.Context(), c.Query("start_date"), c.Query("end_date"), c.Query("type"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, records)
}

// GetOrderIncomeSummary 汇总某订单的某类收入
// GET /api/v1/income/order-summary?order_id=xxx&type=interest
func (h *Handler) GetOrderIncomeSummary(c *gin.Context) {
	orderID := c.Query("order_id")
	incomeType := c.DefaultQuery("type", "interest")
	if orderID == "" {
		response.ParamError(c, "order_id 不能为空")
		return
	}
	total, count, err := h.incomeService.SumOrderIncome(c.Request.Context(), orderID, incomeType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"order_id": orderID,
		"type":     incomeType,
		"total":    total,
		"count":    count,
	})
}

// ============================================================
// 撤销接口
// ============================================================

// Undo 撤销上一条操作
// POST /api/v1/undo
func (h *Handler) Undo(c *gin.Context) {
	var req ChatActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.undoService.Undo(c.Request.Context(), req.UserID, req.ChatID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 统计查询接口
// ============================================================

// GetGlobalStats 全局统计快照
// GET /api/v1/stats/global
func (h *Handler) GetGlobalStats(c *gin.Context) {
	row, err := h.ledgerRepo.GetGlobal(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, row)
}

// GetGroupStats 归属ID统计快照
// GET /api/v1/stats/group?group_id=xxx（缺省返回全部）
func (h *Handler) GetGroupStats(c *gin.Context) {
	groupID := c.Query("group_id")
	if groupID == "" {
		rows, err := h.ledgerRepo.ListGroups(c.Request.Context())
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, rows)
		return
	}
	row, err := h.ledgerRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, row)
}

// GetDailyStats 日结统计快照
// GET /api/v1/stats/daily?date=&group_id=（date 缺省为当前业务日期）
func (h *Handler) GetDailyStats(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = h.calendar.PeriodDate()
	} else if !dates.ValidDate(date) {
		response.ParamError(c, "date 格式必须是 YYYY-MM-DD")
		return
	}

	if groupID, ok := c.GetQuery("group_id"); ok {
		row, err := h.ledgerRepo.GetDaily(c.Request.Context(), date, groupID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		response.Success(c, row)
		return
	}

	rows, err := h.ledgerRepo.ListDailyByDate(c.Request.Context(), date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, rows)
}

// GetOperationDetail 按ID查询单条操作记录（核对撤销结果时用）
// GET /api/v1/operation/detail?id=xxx
func (h *Handler) GetOperationDetail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}
	log, err := h.operationRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, log)
}

// ListRecentOperations 最近操作记录
// GET /api/v1/operation/recent?chat_id=xxx&limit=20
func (h *Handler) ListRecentOperations(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Query("chat_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "chat_id 参数错误")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	logs, err := h.operationRepo.ListRecent(c.Request.Context(), chatID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, logs)
}

// Health 健康检查
// 同时返回自然日期与业务日期，方便核对日切是否生效
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":      "ok",
		"today":       h.calendar.Today(),
		"period_date": h.calendar.PeriodDate(),
	})
}

// ============================================================
// 对账接口
// ============================================================

// ReconcileCheck 重算并返回统计偏差
// POST /api/v1/reconcile/check
func (h *Handler) ReconcileCheck(c *gin.Context) {
	diffs, err := h.reconcileService.RecomputeAndDiff(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"diff_count": len(diffs),
		"diffs":      diffs,
	})
}

// ReconcileFix 重算偏差并修复统计表
// POST /api/v1/reconcile/fix
func (h *Handler) ReconcileFix(c *gin.Context) {
	diffs, err := h.reconcileService.RecomputeAndDiff(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.reconcileService.ApplyFixes(c.Request.Context(), diffs); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"fixed_count": len(diffs),
		"diffs":       diffs,
	})
}
