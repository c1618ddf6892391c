package router

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/polkiloo/shiftclose/internal/server/http/handlers"
	"github.com/polkiloo/shiftclose/internal/server/http/middleware"
)

// Setup configures gin router with handlers and middleware.
func Setup(facade handlers.ClosingFacade, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.DecompressRequest())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	draftHandler := handlers.NewDraftHandler(facade)
	lotteryHandler := handlers.NewLotteryHandler(facade)

	api := engine.Group("/api")
	api.Use(middleware.AuthRequired(facade))

	drafts := api.Group("/drafts")
	drafts.POST("", draftHandler.Create)
	drafts.GET("/active", draftHandler.Active)
	drafts.GET("/latest", draftHandler.Latest)
	drafts.GET("/:id", draftHandler.Get)
	drafts.PATCH("/:id", draftHandler.Update)
	drafts.PUT("/:id/step", draftHandler.Step)
	drafts.POST("/:id/finalizing", draftHandler.MarkFinalizing)
	drafts.DELETE("/:id/finalizing", draftHandler.RevertFinalizing)
	drafts.POST("/:id/finalize", draftHandler.Finalize)
	drafts.POST("/:id/expire", draftHandler.Expire)
	drafts.POST("/:id/settlement", draftHandler.Settle)

	lottery := api.Group("/lottery")
	lottery.POST("/prepare", lotteryHandler.Prepare)
	lottery.GET("/days/:day_id/attempt", lotteryHandler.Attempt)
	lottery.POST("/days/:day_id/commit", lotteryHandler.Commit)
	lottery.POST("/days/:day_id/cancel", lotteryHandler.Cancel)

	return engine
}
