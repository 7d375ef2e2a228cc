package httphandlers

import (
	"github.com/Lumerin-protocol/miner-dashboard/internal/config"
	"github.com/gin-gonic/gin"
)

func (h *HTTPHandler) GetConfig(ctx *gin.Context) {
	ctx.JSON(200, ConfigResponse{
		Version: config.BuildVersion,
		Config:  h.config.GetSanitized(),
	})
}
