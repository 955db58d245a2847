package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tanafus/tender/internal/middleware"
)

// RegisterRoutes 注册招标引擎全部路由
//
// Manager-only transitions sit behind the tender_manager role (tender_admin
// passes any role check); panelists and approvers authenticate with the same
// JWT and are authorized per-operation in the service layer.
func RegisterRoutes(v1 *gin.RouterGroup, h *Handlers) {
	adminOnly := middleware.RequireRole("tender_manager")

	tenders := v1.Group("/tenders")
	{
		tenders.GET("", h.Tender.List)
		tenders.POST("", adminOnly, h.Tender.Create)
		tenders.GET("/:id", h.Tender.Get)
		tenders.POST("/:id/publish", adminOnly, h.Tender.Publish)
		tenders.POST("/:id/cancel", adminOnly, h.Tender.Cancel)

		tenders.POST("/:id/bids", h.Bid.Submit)
		tenders.GET("/:id/bids", h.Bid.List)
		tenders.POST("/:id/bids/open", adminOnly, h.Tender.OpenBids)

		eval := tenders.Group("/:id/evaluation")
		{
			eval.POST("/setup", adminOnly, h.Evaluation.SetupPanel)
			eval.GET("/panel", h.Evaluation.GetPanel)
			eval.POST("/scores", h.Evaluation.SubmitScores)
			eval.GET("/scores", h.Evaluation.ListScores)
			eval.POST("/lock-scores", adminOnly, h.Evaluation.LockScores)
			eval.POST("/calculate-commercial-scores", adminOnly, h.Evaluation.CalculateCommercial)
			eval.POST("/calculate-combined", adminOnly, h.Evaluation.CalculateCombined)
			eval.GET("/comparable-sheet", h.Evaluation.ComparableSheet)
			eval.GET("/combined-scorecard", h.Evaluation.Scorecard)
		}

		approval := tenders.Group("/:id/approval")
		{
			approval.POST("/initiate", adminOnly, h.Approval.Initiate)
			approval.POST("/decide", h.Approval.Decide)
			approval.GET("", h.Approval.GetCurrent)
			approval.GET("/history", h.Approval.GetHistory)
		}
	}

	bids := v1.Group("/bids")
	{
		bids.GET("/:id", h.Bid.Get)
		bids.POST("/:id/accept-late", adminOnly, h.Bid.AcceptLate)
		bids.POST("/:id/reject-late", adminOnly, h.Bid.RejectLate)
		bids.POST("/:id/disqualify", adminOnly, h.Bid.Disqualify)
		bids.POST("/:id/pricing-file", h.Bid.UploadPricingFile)

		imp := bids.Group("/:id/import")
		{
			imp.POST("/parse", h.Import.Parse)
			imp.POST("/map-columns", h.Import.MapColumns)
			imp.POST("/match", h.Import.Match)
			imp.POST("/normalize", h.Import.Normalize)
			imp.POST("/validate", h.Import.Validate)
			imp.POST("/execute", h.Import.Execute)
		}
	}
}
