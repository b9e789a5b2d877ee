package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardWatch/internal/middleware"
	"GuardWatch/internal/model"
	"GuardWatch/internal/repository"
	"GuardWatch/internal/service"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type stubStatus struct {
	status *model.ScanStatus
	err    error
}

func (s stubStatus) Get(context.Context, time.Time) (*model.ScanStatus, error) {
	return s.status, s.err
}

// asAdmin 模拟认证中间件写入的身份
func asAdmin(id int64) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Set(middleware.IdentityKey, id)
		c.Next(ctx)
	}
}

func setup(t *testing.T, status service.ScanStatusReader) (*route.Engine, *repository.MemoryAlertStore) {
	t.Helper()

	var n atomic.Int64
	store := repository.NewMemoryAlertStore(func() (int64, error) { return 1000 + n.Add(1), nil }, clockwork.NewFakeClockAt(now))
	service.Init(
		service.NewAlertService(store, nil, nil, nil),
		service.NewScanService(status, clockwork.NewFakeClockAt(now), nil),
	)

	engine := route.NewEngine(config.NewOptions(nil))
	engine.GET("/healthz", Healthz)
	v1 := engine.Group("/v1", asAdmin(77))
	v1.GET("/alerts/:alert_id", GetAlert)
	v1.POST("/alerts/:alert_id/ack", AcknowledgeAlert)
	v1.GET("/sites/:site_id/alerts/open", ListOpenAlerts)
	v1.GET("/scan/status", GetScanStatus)
	return engine, store
}

func seedAlert(t *testing.T, store *repository.MemoryAlertStore, shiftID, siteID int64) *model.Alert {
	t.Helper()
	a, _, err := store.CreateIfAbsentOpen(context.Background(), shiftID, model.AlertTypeMissedCheckin, model.AlertMeta{
		SiteID:        siteID,
		WindowIndex:   1,
		DueAt:         now.Add(-20 * time.Minute),
		GraceDeadline: now.Add(-10 * time.Minute),
	})
	require.NoError(t, err)
	return a
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestAcknowledgeAlert(t *testing.T) {
	engine, store := setup(t, nil)
	alert := seedAlert(t, store, 1, 9)

	w := ut.PerformRequest(engine, http.MethodPost, "/v1/alerts/"+alert.IDString()+"/ack", nil)
	require.Equal(t, http.StatusOK, w.Result().StatusCode())

	var acked model.Alert
	require.NoError(t, json.Unmarshal(decode(t, w.Result().Body()).Data, &acked))
	assert.Equal(t, alert.ID, acked.ID)
	require.NotNil(t, acked.AcknowledgedByID)
	assert.Equal(t, int64(77), *acked.AcknowledgedByID)

	w = ut.PerformRequest(engine, http.MethodPost, "/v1/alerts/"+alert.IDString()+"/ack", nil)
	assert.Equal(t, http.StatusConflict, w.Result().StatusCode())
	assert.Equal(t, "ALERT_ALREADY_ACKNOWLEDGED", decode(t, w.Result().Body()).Error.Code)
}

func TestAcknowledgeAlert_Errors(t *testing.T) {
	engine, _ := setup(t, nil)

	w := ut.PerformRequest(engine, http.MethodPost, "/v1/alerts/abc/ack", nil)
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode())
	assert.Equal(t, "INVALID_ALERT_ID", decode(t, w.Result().Body()).Error.Code)

	w = ut.PerformRequest(engine, http.MethodPost, "/v1/alerts/424242/ack", nil)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode())
	assert.Equal(t, "ALERT_NOT_FOUND", decode(t, w.Result().Body()).Error.Code)
}

func TestGetAlert(t *testing.T) {
	engine, store := setup(t, nil)
	alert := seedAlert(t, store, 4, 9)

	w := ut.PerformRequest(engine, http.MethodGet, "/v1/alerts/"+alert.IDString(), nil)
	require.Equal(t, http.StatusOK, w.Result().StatusCode())

	var got model.Alert
	require.NoError(t, json.Unmarshal(decode(t, w.Result().Body()).Data, &got))
	assert.Equal(t, alert.ID, got.ID)
	assert.True(t, got.IsOpen())

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/alerts/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode())

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/alerts/31337", nil)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode())
}

func TestListOpenAlerts(t *testing.T) {
	engine, store := setup(t, nil)
	seedAlert(t, store, 1, 9)
	seedAlert(t, store, 2, 9)
	seedAlert(t, store, 3, 5)

	w := ut.PerformRequest(engine, http.MethodGet, "/v1/sites/9/alerts/open", nil)
	require.Equal(t, http.StatusOK, w.Result().StatusCode())

	var res model.OpenAlertsResponse
	require.NoError(t, json.Unmarshal(decode(t, w.Result().Body()).Data, &res))
	assert.Equal(t, int64(9), res.SiteID)
	assert.Len(t, res.Alerts, 2)

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/sites/-1/alerts/open", nil)
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode())
}

func TestGetScanStatus(t *testing.T) {
	last := now.Add(-30 * time.Second)
	engine, _ := setup(t, stubStatus{status: &model.ScanStatus{LastRunID: "r1", LastSuccessAt: &last}})

	w := ut.PerformRequest(engine, http.MethodGet, "/v1/scan/status", nil)
	require.Equal(t, http.StatusOK, w.Result().StatusCode())

	var st model.ScanStatus
	require.NoError(t, json.Unmarshal(decode(t, w.Result().Body()).Data, &st))
	assert.Equal(t, "r1", st.LastRunID)
	assert.False(t, st.Stale)

	engine, _ = setup(t, nil)
	w = ut.PerformRequest(engine, http.MethodGet, "/v1/scan/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode())
}

func TestHealthz(t *testing.T) {
	engine, _ := setup(t, nil)
	w := ut.PerformRequest(engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}
