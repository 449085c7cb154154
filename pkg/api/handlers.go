package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/evidence-registry/evreg/pkg/evidence"
	"github.com/evidence-registry/evreg/pkg/journal"
	"github.com/evidence-registry/evreg/pkg/roles"
	"github.com/evidence-registry/evreg/pkg/session"
	"github.com/evidence-registry/evreg/pkg/view"
)

type sessionResponse struct {
	Session session.Session `json:"session"`
	Panels  view.Panels     `json:"panels"`
}

type response struct {
	Notification *view.Notification `json:"notification,omitempty"`
	Result       any                `json:"result,omitempty"`
}

type errorResponse struct {
	Error        string            `json:"error"`
	Kind         string            `json:"kind"`
	Notification view.Notification `json:"notification"`
}

func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) sessionView() sessionResponse {
	snap := s.sessions.Snapshot()
	return sessionResponse{Session: snap, Panels: view.PanelsFor(snap.Roles)}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, response{Result: s.sessionView()})
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.Connect(r.Context()); err != nil {
		s.writeError(w, view.ActionConnect, err)
		return
	}
	n := s.notifier.Success(view.ActionConnect, "")
	s.writeJSON(w, http.StatusOK, response{Notification: &n, Result: s.sessionView()})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.RefreshRoles(r.Context()); err != nil {
		s.writeError(w, view.ActionRoleCheck, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Result: s.sessionView()})
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	s.sessions.Invalidate("disconnected by user")
	s.writeJSON(w, http.StatusOK, response{Result: s.sessionView()})
}

func (s *Server) panels(w http.ResponseWriter, r *http.Request) {
	snap := s.sessions.Snapshot()
	if !snap.Connected {
		s.writeError(w, view.ActionRoleCheck, session.ErrNotConnected)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Result: view.PanelsFor(snap.Roles)})
}

// requirePanel fails unless the connected account is shown panel.
func (s *Server) requirePanel(panel view.Panel) error {
	snap := s.sessions.Snapshot()
	if !snap.Connected {
		return session.ErrNotConnected
	}
	return view.Require(snap.Roles, panel)
}

func (s *Server) addEvidence(w http.ResponseWriter, r *http.Request) {
	if err := s.requirePanel(view.AddEvidence); err != nil {
		s.writeError(w, view.ActionAddEvidence, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, view.ActionAddEvidence, fmt.Errorf("%w: %w", evidence.ErrInvalidInput, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req := evidence.AddRequest{
		CaseID:      r.FormValue("caseId"),
		Description: r.FormValue("description"),
		CID:         r.FormValue("cid"),
	}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		req.File = file
		req.FileName = header.Filename
	case !errors.Is(err, http.ErrMissingFile):
		s.writeError(w, view.ActionAddEvidence, fmt.Errorf("%w: %w", evidence.ErrInvalidInput, err))
		return
	}

	res, err := s.evidence.AddEvidence(r.Context(), req)
	if err != nil {
		s.writeError(w, view.ActionAddEvidence, err)
		return
	}
	n := s.notifier.Success(view.ActionAddEvidence, "")
	s.writeJSON(w, http.StatusCreated, response{Notification: &n, Result: res})
}

func (s *Server) getEvidence(w http.ResponseWriter, r *http.Request) {
	if err := s.requirePanel(view.RetrieveEvidence); err != nil {
		s.writeError(w, view.ActionRetrieveEvidence, err)
		return
	}
	id, err := evidence.ParseID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, view.ActionRetrieveEvidence, err)
		return
	}
	rec, err := s.evidence.GetEvidence(r.Context(), id)
	if err != nil {
		s.writeError(w, view.ActionRetrieveEvidence, err)
		return
	}
	n := s.notifier.Success(view.ActionRetrieveEvidence, "")
	s.writeJSON(w, http.StatusOK, response{Notification: &n, Result: rec})
}

func (s *Server) evidenceCount(w http.ResponseWriter, r *http.Request) {
	if err := s.requirePanel(view.RetrieveEvidence); err != nil {
		s.writeError(w, view.ActionRetrieveEvidence, err)
		return
	}
	n, err := s.evidence.EvidenceCount(r.Context())
	if err != nil {
		s.writeError(w, view.ActionRetrieveEvidence, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Result: map[string]uint64{"count": n}})
}

type roleRequest struct {
	Address string `json:"address"`
}

func (s *Server) changeRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := view.ActionGrantRole
	if vars["action"] == "revoke" {
		action = view.ActionRevokeRole
	}
	subject := roles.Police.String()
	if vars["role"] == "court" {
		subject = roles.CourtOfficial.String()
	}

	if err := s.requirePanel(view.OwnerControls); err != nil {
		s.writeError(w, action, err)
		return
	}

	var req roleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, action, fmt.Errorf("%w: %w", evidence.ErrInvalidInput, err))
		return
	}

	var (
		res evidence.RoleResult
		err error
	)
	switch {
	case vars["role"] == "police" && action == view.ActionGrantRole:
		res, err = s.evidence.GrantPolice(r.Context(), req.Address)
	case vars["role"] == "police":
		res, err = s.evidence.RevokePolice(r.Context(), req.Address)
	case action == view.ActionGrantRole:
		res, err = s.evidence.GrantCourtOfficial(r.Context(), req.Address)
	default:
		res, err = s.evidence.RevokeCourtOfficial(r.Context(), req.Address)
	}
	if err != nil {
		s.writeError(w, action, err)
		return
	}
	n := s.notifier.Success(action, subject)
	s.writeJSON(w, http.StatusOK, response{Notification: &n, Result: res})
}

func (s *Server) pins(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, response{Result: []journal.PinEntry{}})
		return
	}
	var (
		entries []journal.PinEntry
		err     error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", "all":
		entries, err = s.journal.List(r.Context())
	case string(journal.StatusOrphaned):
		entries, err = s.journal.Orphaned(r.Context())
	default:
		s.writeError(w, view.ActionAddEvidence, fmt.Errorf("%w: unknown status %q", evidence.ErrInvalidInput, status))
		return
	}
	if err != nil {
		s.writeError(w, view.ActionAddEvidence, err)
		return
	}
	if entries == nil {
		entries = []journal.PinEntry{}
	}
	s.writeJSON(w, http.StatusOK, response{Result: entries})
}

func (s *Server) writeError(w http.ResponseWriter, action view.Action, err error) {
	kind := evidence.Classify(err)
	status := statusFor(kind)
	if errors.Is(err, view.ErrPanelHidden) {
		status = http.StatusForbidden
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "kind", kind, "err", err)
	} else {
		s.logger.Debug("request rejected", "kind", kind, "err", err)
	}
	s.writeJSON(w, status, errorResponse{
		Error:        err.Error(),
		Kind:         kind.String(),
		Notification: s.notifier.Failure(action, err),
	})
}

func statusFor(kind evidence.Kind) int {
	switch kind {
	case evidence.KindInvalidInput:
		return http.StatusBadRequest
	case evidence.KindNotConnected, evidence.KindWrongNetwork:
		return http.StatusConflict
	case evidence.KindRejected:
		return http.StatusForbidden
	case evidence.KindReverted:
		return http.StatusUnprocessableEntity
	case evidence.KindBusy:
		return http.StatusTooManyRequests
	case evidence.KindPinning, evidence.KindNumericRange:
		return http.StatusBadGateway
	case evidence.KindNoWallet:
		return http.StatusServiceUnavailable
	case evidence.KindCanceled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writing response", "err", err)
	}
}
