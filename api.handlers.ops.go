package main

import (
	"expvar"
	"net/http"
	"net/http/pprof"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const defaultEventsListLimit = 100

// Maintenance switches the maintenance mode. While enabled public requests get a 503
// with the configured message.
// Enable the maintenance mode : /ops/maintenance?status=enable&msg=message-to-be-displayed-to-users
// Disable the maintenance mode: /ops/maintenance?status=disable
// Show the current mode: /ops/maintenance
func (api *APIHandler) Maintenance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	q := r.URL.Query()
	var resp *APIResponse

	switch q.Get("status") {
	case "enable":
		api.mode.mu.Lock()
		api.mode.message = q.Get("msg")
		api.mode.started = api.clock.Now()
		api.mode.mu.Unlock()
		api.mode.enabled.Store(true)
		resp = GenericResponse(requestID, http.StatusOK, "Maintenance mode enabled successfully.", nil, api.maintenanceInfos())
		api.logger.Warn("maintenance mode enabled", zap.String("request.id", requestID))

	case "disable":
		api.mode.enabled.Store(false)
		api.mode.mu.Lock()
		api.mode.message = ""
		api.mode.started = time.Time{}
		api.mode.mu.Unlock()
		resp = GenericResponse(requestID, http.StatusOK, "Maintenance mode disabled successfully.", nil, api.maintenanceInfos())
		api.logger.Warn("maintenance mode disabled", zap.String("request.id", requestID))

	case "":
		resp = GenericResponse(requestID, http.StatusOK, "Maintenance mode details.", nil, api.maintenanceInfos())

	default:
		errResp := NewAPIError(requestID, http.StatusBadRequest, "status must be enable or disable", EmptyData)
		if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
			api.logger.Error("failed to send maintenance response", zap.String("request.id", requestID), zap.Error(err))
		}
		return
	}

	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send maintenance response", zap.String("request.id", requestID), zap.Error(err))
	}
}

func (api *APIHandler) maintenanceInfos() map[string]interface{} {
	api.mode.mu.RLock()
	defer api.mode.mu.RUnlock()
	started := ""
	if !api.mode.started.IsZero() {
		started = api.mode.started.Format(time.RFC1123)
	}
	return map[string]interface{}{
		"enabled": api.mode.enabled.Load(),
		"started": started,
		"message": api.mode.message,
	}
}

// Health reports whether the database answers within the request deadline.
func (api *APIHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	if err := api.db.Ping(r.Context()); err != nil {
		api.logger.Error("database ping failed", zap.String("request.id", requestID), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusServiceUnavailable, "database is unreachable.", map[string]interface{}{"database": "down"})
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			api.logger.Error("failed to send health response", zap.String("request.id", requestID), zap.Error(err))
		}
		return
	}
	resp := GenericResponse(requestID, http.StatusOK, "Service is healthy.", nil, map[string]interface{}{"database": "up"})
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send health response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// export goroutines to be used by expvar handler.
var goroutines = expvar.NewInt("goroutines")

// GetMemStats returns memory statistics with number of goroutines in json.
func GetMemStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	goroutines.Set(int64(runtime.NumGoroutine()))
	expvar.Handler().ServeHTTP(w, r)
}

// RunGC forces the run of the garbage collector asynchronously.
func (api *APIHandler) RunGC(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	go runtime.GC()
	resp := GenericResponse(requestID, http.StatusOK, "called go runtime.GC()", nil, EmptyData)
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send run gc response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// FreeOSMemory asynchronously forces a garbage collection and
// tries to return as much memory as possible to the os.
func (api *APIHandler) FreeOSMemory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	go debug.FreeOSMemory()
	resp := GenericResponse(requestID, http.StatusOK, "called go debug.FreeOSMemory()", nil, EmptyData)
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send free os memory response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// GetStatistics provides useful details about the application to the internal ops users.
// The current ops request is not accounted in the `called` field.
func (api *APIHandler) GetStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	api.stats.mu.RLock()
	status := make(map[string]uint64, len(api.stats.status))
	for code, count := range api.stats.status {
		status[strconv.Itoa(code)] = count
	}
	api.stats.mu.RUnlock()

	called := atomic.LoadUint64(&api.stats.called)
	if called > 0 {
		called--
	}
	resp := GenericResponse(requestID, http.StatusOK, "Statistics fetched successfully.", nil,
		map[string]interface{}{
			"app.version":   api.stats.version,
			"app.container": api.stats.container,
			"app.platform":  api.stats.platform,
			"go.version":    api.stats.runtime,
			"called":        called,
			"started":       api.stats.started.Format(time.RFC1123),
			"uptime":        api.clock.Now().Sub(api.stats.started).Round(time.Second).String(),
			"maintenance":   api.maintenanceInfos(),
			"status":        status,
		},
	)
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send statistics response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// GetConfigs serves current in-use configurations. Secrets are not serialized.
func (api *APIHandler) GetConfigs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	resp := GenericResponse(requestID, http.StatusOK, "Configurations fetched successfully.", nil, api.config)
	if err := WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send configs response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// ListEvents serves the most recent archived book events. The
// number of events is bounded by the `limit` query parameter.
func (api *APIHandler) ListEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	if api.archive == nil {
		errResp := NewAPIError(requestID, http.StatusNotFound, "events feed is disabled", EmptyData)
		if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
			api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
		}
		return
	}

	limit := defaultEventsListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errResp := NewAPIError(requestID, http.StatusBadRequest, "limit must be a positive number", EmptyData)
			if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
				api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
			}
			return
		}
		limit = n
	}

	events, err := api.archive.List(limit)
	if err != nil {
		api.logger.Error("failed to list events", zap.String("request.id", requestID), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to list events", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
		}
		return
	}
	total := len(events)
	resp := GenericResponse(requestID, http.StatusOK, "Events fetched successfully.", &total, events)
	if err = WriteResponse(r.Context(), w, resp); err != nil {
		api.logger.Error("failed to send events response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// OpsHandlerWrapper adapts a standard http.Handler to the router signature.
func (api *APIHandler) OpsHandlerWrapper(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

func (api *APIHandler) GetCPUProfile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pprof.Profile(w, r)
}

func (api *APIHandler) GetTraceProfile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pprof.Trace(w, r)
}

func (api *APIHandler) GetSymbol(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pprof.Symbol(w, r)
}

func (api *APIHandler) GetCmdLine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pprof.Cmdline(w, r)
}
