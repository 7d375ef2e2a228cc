package httphandlers

import (
	"context"
	"strconv"

	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/gin-gonic/gin"
)

func (h *HTTPHandler) ToggleMining(ctx *gin.Context) {
	h.command(ctx, h.dashboard.ToggleMining)
}

func (h *HTTPHandler) ResumeMining(ctx *gin.Context) {
	h.command(ctx, h.dashboard.ResumeMining)
}

func (h *HTTPHandler) Reconnect(ctx *gin.Context) {
	h.command(ctx, h.dashboard.Reconnect)
}

func (h *HTTPHandler) SetEngine(ctx *gin.Context) {
	kindString := ctx.Query("kind")
	if kindString == "" {
		ctx.JSON(400, gin.H{"error": "empty engine kind"})
		return
	}
	kind, err := mining.ParseEngineKind(kindString)
	if err != nil {
		ctx.JSON(400, gin.H{"error": err.Error()})
		return
	}
	h.command(ctx, func(c context.Context) error {
		return h.dashboard.SetEngine(c, kind)
	})
}

func (h *HTTPHandler) SetThreads(ctx *gin.Context) {
	count, err := strconv.Atoi(ctx.Query("count"))
	if err != nil {
		ctx.JSON(400, gin.H{"error": "count must be an integer"})
		return
	}
	h.command(ctx, func(c context.Context) error {
		return h.dashboard.SetThreads(c, count)
	})
}

func (h *HTTPHandler) command(ctx *gin.Context, cmd func(context.Context) error) {
	err := cmd(ctx.Request.Context())
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	snap := h.dashboard.Snapshot()
	ctx.JSON(200, SessionResponse{
		Session:          snap.Session,
		MinerButtonLabel: snap.Facts.MinerButtonLabel,
	})
}
