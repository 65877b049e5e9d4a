package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.POST("/overdue", h.MarkOverdue)
			order.POST("/normal", h.MarkNormal)
			order.POST("/breach", h.MarkBreach)
			order.POST("/complete", h.CompleteOrder)
			order.POST("/breach-complete", h.CompleteBreach)
			order.POST("/change-group", h.ChangeOrderGroup)
			order.GET("/current", h.GetCurrentOrder)
			order.GET("/search", h.SearchOrders)
		}

		income := api.Group("/income")
		{
			income.POST("/interest", h.RecordInterest)
			income.POST("/principal-reduction", h.ReducePrincipal)
			income.GET("/records", h.QueryIncomes)
			income.GET("/order-summary", h.GetOrderIncomeSummary)
		}

		expense := api.Group("/expense")
		{
			expense.POST("/create", h.RecordExpense)
			expense.GET("/list", h.QueryExpenses)
		}

		api.POST("/undo", h.Undo)

		stats := api.Group("/stats")
		{
			stats.GET("/global", h.GetGlobalStats)
			stats.GET("/group", h.GetGroupStats)
			stats.GET("/daily", h.GetDailyStats)
		}

		operation := api.Group("/operation")
		{
			operation.GET("/recent", h.ListRecentOperations)
			operation.GET("/detail", h.GetOperationDetail)
		}

		reconcile := api.Group("/reconcile")
		{
			reconcile.POST("/check", h.ReconcileCheck)
			reconcile.POST("/fix", h.ReconcileFix)
		}
	}

	r.GET("/health", h.Health)

	return r
}
