package handler

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"GuardWatch/internal/service"
	"GuardWatch/pkg/response"
)

// GetScanStatus 最近一次巡检状态，stale 为 true 说明调度可能已停止
// GET /v1/scan/status
func GetScanStatus(ctx context.Context, c *app.RequestContext) {
	status, err := service.Scan().Status(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, status)
}

// Healthz 存活探针
// GET /healthz
func Healthz(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
