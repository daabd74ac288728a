package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leasectl/leasectl/internal/history"
	"github.com/leasectl/leasectl/internal/task"
	"github.com/leasectl/leasectl/internal/transport"
	"github.com/leasectl/leasectl/pkg/dhcpv4"
)

// maxBodyBytes bounds request bodies; every body is a small JSON object.
const maxBodyBytes = 4096

// handleHealth returns daemon health status (no auth required).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"tasks":          len(s.registry.List()),
	}
	if s.history != nil {
		resp["history_leases"] = s.history.Count()
	}
	JSONResponse(w, http.StatusOK, resp)
}

// handleRequestLease starts a background DORA exchange for a MAC and
// returns the new task.
func (s *Server) handleRequestLease(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MAC string `json:"mac"`
	}
	if err := decodeBody(r, &body); err != nil {
		JSONError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	id, err := s.registry.Submit(body.MAC)
	if err != nil {
		if errors.Is(err, task.ErrStopped) {
			JSONError(w, http.StatusServiceUnavailable, "stopping", err.Error())
			return
		}
		JSONError(w, http.StatusBadRequest, "invalid_mac", err.Error())
		return
	}

	t, ok := s.registry.Get(id)
	if !ok {
		JSONError(w, http.StatusInternalServerError, "internal", "task vanished")
		return
	}
	w.Header().Set("Location", "/api/v1/tasks/"+id)
	JSONResponse(w, http.StatusAccepted, t)
}

// handleListTasks returns tracked tasks. Query params: mac, state
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	macFilter := strings.ToLower(r.URL.Query().Get("mac"))
	stateFilter := r.URL.Query().Get("state")

	tasks := s.registry.List()
	result := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if macFilter != "" && strings.ToLower(t.MAC) != macFilter {
			continue
		}
		if stateFilter != "" && t.State.String() != stateFilter {
			continue
		}
		result = append(result, t)
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(result)))
	JSONResponse(w, http.StatusOK, result)
}

// handleGetTask returns a single task by id.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		JSONError(w, http.StatusNotFound, "not_found", "no task with that id")
		return
	}
	JSONResponse(w, http.StatusOK, t)
}

type releaseRequest struct {
	MAC      string `json:"mac"`
	IP       string `json:"ip,omitempty"`
	ServerID string `json:"server_id,omitempty"`
}

// handleRelease sends a DHCPRELEASE. A missing ip or server_id is filled
// in from the last lease recorded for the MAC.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := decodeBody(r, &req); err != nil {
		JSONError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if _, err := dhcpv4.ParseMAC(req.MAC); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid_mac", err.Error())
		return
	}

	if req.IP == "" || req.ServerID == "" {
		var last *history.Lease
		if s.history != nil {
			last = s.history.GetLease(req.MAC)
		}
		if last == nil {
			JSONError(w, http.StatusNotFound, "no_lease", "no recorded lease for "+req.MAC+"; supply ip and server_id")
			return
		}
		if req.IP == "" {
			req.IP = last.IP.String()
		}
		if req.ServerID == "" {
			req.ServerID = last.ServerID.String()
		}
	}

	ip, err := dhcpv4.ParseIPv4(req.IP)
	if err != nil {
		JSONError(w, http.StatusBadRequest, "invalid_ip", err.Error())
		return
	}
	sid, err := dhcpv4.ParseIPv4(req.ServerID)
	if err != nil {
		JSONError(w, http.StatusBadRequest, "invalid_server_id", err.Error())
		return
	}

	if err := s.release(r.Context(), req.MAC, req.IP, req.ServerID); err != nil {
		var be *transport.BindError
		if errors.As(err, &be) {
			JSONError(w, http.StatusServiceUnavailable, "bind_error", err.Error())
			return
		}
		JSONError(w, http.StatusBadGateway, "release_failed", err.Error())
		return
	}

	if s.history != nil {
		if err := s.history.RecordRelease(req.MAC, ip, sid, time.Now()); err != nil {
			s.logger.Warn("failed to record release", "mac", req.MAC, "error", err)
		}
	}

	JSONResponse(w, http.StatusOK, map[string]string{
		"status":    "released",
		"mac":       req.MAC,
		"ip":        ip.String(),
		"server_id": sid.String(),
	})
}

// handleListHistory returns recorded leases. Query params: active
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		JSONError(w, http.StatusNotFound, "history_disabled", "lease history is not enabled")
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	leases := s.history.Leases()
	result := make([]*history.Lease, 0, len(leases))
	for _, l := range leases {
		if activeOnly && !l.Active() {
			continue
		}
		result = append(result, l)
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(result)))
	JSONResponse(w, http.StatusOK, result)
}

// handleGetHistory returns the last lease and recent attempts for a MAC.
// Query params: limit (default 20)
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		JSONError(w, http.StatusNotFound, "history_disabled", "lease history is not enabled")
		return
	}
	mac, err := net.ParseMAC(r.PathValue("mac"))
	if err != nil {
		JSONError(w, http.StatusBadRequest, "invalid_mac", err.Error())
		return
	}
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	lease := s.history.GetLease(mac.String())
	attempts, err := s.history.Attempts(mac.String(), limit)
	if err != nil {
		s.logger.Error("reading lease attempts", "mac", mac.String(), "error", err)
		JSONError(w, http.StatusInternalServerError, "internal", "reading history failed")
		return
	}
	if lease == nil && len(attempts) == 0 {
		JSONError(w, http.StatusNotFound, "not_found", "no history for "+mac.String())
		return
	}

	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"lease":    lease,
		"attempts": attempts,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
