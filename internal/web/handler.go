package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lancaster971/pilotproOS-sub003/internal/history"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
	"github.com/lancaster971/pilotproOS-sub003/internal/registry"
)

// DefaultEventLimit /api/events 默认返回条数
const DefaultEventLimit = 20

// StatusSource 提供缓存的快照与事件
type StatusSource interface {
	Snapshot() model.Snapshot
	RecentEvents(limit int) []model.Event
}

// Controller 服务的实时查询与生命周期操作
type Controller interface {
	GetStatus(ctx context.Context, serviceID string) (model.ServiceState, error)
	Restart(ctx context.Context, serviceID string) model.RestartResult
	Start(ctx context.Context, serviceID string) error
	Stop(ctx context.Context, serviceID string) error
}

// Archive 持久化的事件历史
type Archive interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

type Handler struct {
	source     StatusSource
	controller Controller
	archive    Archive
	logger     *zap.Logger
}

func NewHandler(source StatusSource, controller Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		source:     source,
		controller: controller,
		logger:     logger,
	}
}

// SetArchive 启用 /api/events?archive=true
func (h *Handler) SetArchive(a Archive) {
	h.archive = a
}

// Register 在 router 上注册查询接口
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/system/status", h.SystemStatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/services", h.ServicesHandler).Methods(http.MethodGet)
	api.HandleFunc("/services/{id}", h.ServiceHandler).Methods(http.MethodGet)
	api.HandleFunc("/services/{id}/restart", h.RestartHandler).Methods(http.MethodPost)
	api.HandleFunc("/services/{id}/start", h.StartHandler).Methods(http.MethodPost)
	api.HandleFunc("/services/{id}/stop", h.StopHandler).Methods(http.MethodPost)
	api.HandleFunc("/performance", h.PerformanceHandler).Methods(http.MethodGet)
	api.HandleFunc("/events", h.EventsHandler).Methods(http.MethodGet)
	api.HandleFunc("/overview", h.OverviewHandler).Methods(http.MethodGet)
}

// HealthCheckHandler 存活探针, 不需要认证
func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SystemStatusHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, NewSystemStatus(h.source.Snapshot()))
}

func (h *Handler) ServicesHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Snapshot()
	services := make([]ServiceView, 0, len(snap.Services))
	for _, s := range snap.Services {
		services = append(services, NewServiceView(s))
	}
	h.writeJSON(w, http.StatusOK, services)
}

// ServiceHandler 单个服务详情; live=true 时实时查询运行时
func (h *Handler) ServiceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	svc, ok := h.source.Snapshot().Service(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "service not found: "+id)
		return
	}

	if live, _ := strconv.ParseBool(r.URL.Query().Get("live")); live {
		state, err := h.controller.GetStatus(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, id, err)
			return
		}
		svc.State = state
	}
	h.writeJSON(w, http.StatusOK, NewServiceView(svc))
}

// RestartHandler restart 自身失败不是请求错误, 结果原样返回
func (h *Handler) RestartHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.source.Snapshot().Service(id); !ok {
		h.writeError(w, http.StatusNotFound, "service not found: "+id)
		return
	}

	// 客户端断开不中断进行中的 restart, 进度仍完整推送
	result := h.controller.Restart(context.WithoutCancel(r.Context()), id)
	h.logger.Info("manual restart",
		zap.String("service", id),
		zap.Bool("success", result.Success),
		zap.String("message", result.Message))
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) StartHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.controller.Start(r.Context(), id); err != nil {
		h.writeServiceError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, model.RestartResult{Success: true, Message: id + " started"})
}

func (h *Handler) StopHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.controller.Stop(r.Context(), id); err != nil {
		h.writeServiceError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, model.RestartResult{Success: true, Message: id + " stopped"})
}

func (h *Handler) PerformanceHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, NewPerformance(h.source.Snapshot()))
}

func (h *Handler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if archived, _ := strconv.ParseBool(r.URL.Query().Get("archive")); archived {
		if h.archive == nil {
			h.writeError(w, http.StatusNotFound, "event archive not configured")
			return
		}
		records, err := h.archive.Recent(r.Context(), limit)
		if err != nil {
			h.logger.Error("error reading event archive", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "error reading event archive")
			return
		}
		h.writeJSON(w, http.StatusOK, NewRecordViews(records))
		return
	}
	h.writeJSON(w, http.StatusOK, NewEventViews(h.source.RecentEvents(limit)))
}

func (h *Handler) OverviewHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, NewOverview(h.source.Snapshot()))
}

type errorResp struct {
	Error string `json:"error"`
}

func (h *Handler) writeServiceError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, registry.ErrUnknownService) {
		h.writeError(w, http.StatusNotFound, "service not found: "+id)
		return
	}
	h.logger.Error("container runtime request failed", zap.String("service", id), zap.Error(err))
	h.writeError(w, http.StatusBadGateway, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResp{Error: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("error encoding response", zap.Error(err))
	}
}
