package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"GuardWatch/internal/middleware"
	"GuardWatch/internal/service"
	"GuardWatch/pkg/errors"
	"GuardWatch/pkg/response"
)

// AcknowledgeAlert 运营人员确认告警
// POST /v1/alerts/:alert_id/ack
func AcknowledgeAlert(ctx context.Context, c *app.RequestContext) {
	adminID, ok := middleware.GetAdminID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	alertID, err := parseID(c.Param("alert_id"))
	if err != nil {
		response.Error(ctx, c, errors.InvalidAlertID)
		return
	}

	alert, err := service.Alert().Acknowledge(ctx, alertID, adminID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, alert)
}

// GetAlert 查询单个告警
// GET /v1/alerts/:alert_id
func GetAlert(ctx context.Context, c *app.RequestContext) {
	alertID, err := parseID(c.Param("alert_id"))
	if err != nil {
		response.Error(ctx, c, errors.InvalidAlertID)
		return
	}

	alert, err := service.Alert().Get(ctx, alertID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, alert)
}

// ListOpenAlerts 站点打开的告警，看板重连后用于对账
// GET /v1/sites/:site_id/alerts/open
func ListOpenAlerts(ctx context.Context, c *app.RequestContext) {
	siteID, err := parseID(c.Param("site_id"))
	if err != nil {
		response.Error(ctx, c, errors.InvalidSiteID)
		return
	}

	result, err := service.Alert().ListOpen(ctx, siteID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, result, map[string]interface{}{"count": len(result.Alerts)})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
