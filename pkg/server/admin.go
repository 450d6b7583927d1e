package server

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/tenant"
)

const (
	defaultCallsLimit = 50
	maxCallsLimit     = 200
)

var supportedVerticals = []string{"hvac", "plumbing", "spa"}

type createClientRequest struct {
	CompanyName      string             `json:"company_name"`
	PhoneNumber      string             `json:"phone_number"`
	IndustryVertical string             `json:"industry_vertical"`
	CRMPlatform      string             `json:"crm_platform"`
	CRMCredentials   map[string]string  `json:"crm_credentials"`
	Timezone         string             `json:"timezone"`
	Services         []tenant.Service   `json:"services"`
	CallConfig       *tenant.CallConfig `json:"call_config"`
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Request body must be a JSON object."))
		return
	}
	if req.CompanyName == "" || req.PhoneNumber == "" || req.IndustryVertical == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("company_name, phone_number, and industry_vertical are required."))
		return
	}
	if !slices.Contains(supportedVerticals, req.IndustryVertical) {
		writeJSON(w, http.StatusBadRequest, errorBody("industry_vertical must be one of: "+strings.Join(supportedVerticals, ", ")))
		return
	}

	cfg := tenant.Config{
		CompanyName:      req.CompanyName,
		PhoneNumber:      req.PhoneNumber,
		IndustryVertical: req.IndustryVertical,
		CRMPlatform:      req.CRMPlatform,
		CRMCredentials:   req.CRMCredentials,
		Timezone:         req.Timezone,
		Services:         req.Services,
	}
	if req.CallConfig != nil {
		cfg.CallConfig = *req.CallConfig
	}
	id, err := s.deps.Clients.CreateClient(r.Context(), cfg)
	if err != nil {
		s.logger.Error("client_create_failed", errorsx.Attrs(err)...)
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	s.logger.Info("client_created", "client_id", id, "industry_vertical", req.IndustryVertical)
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":                id,
		"company_name":      req.CompanyName,
		"phone_number":      tenant.NormalizePhone(req.PhoneNumber),
		"industry_vertical": req.IndustryVertical,
	})
}

func (s *Server) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Clients.FindByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, tenant.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("Client not found."))
		return
	}
	if err != nil {
		s.logger.Error("client_lookup_failed", errorsx.Attrs(err)...)
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	var prompt string
	if s.deps.Prompts != nil {
		prompt = s.deps.Prompts.Assemble(cfg)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client":           cfg,
		"assembled_prompt": prompt,
	})
}

func (s *Server) handleClientCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), defaultCallsLimit)
	if limit == 0 {
		limit = defaultCallsLimit
	}
	if limit > maxCallsLimit {
		limit = maxCallsLimit
	}
	offset := queryInt(q.Get("offset"), 0)

	calls, err := s.deps.Clients.ListCallLogs(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		s.logger.Error("call_logs_list_failed", errorsx.Attrs(err)...)
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	if calls == nil {
		calls = []calllog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls, "limit": limit, "offset": offset})
}

func queryInt(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
