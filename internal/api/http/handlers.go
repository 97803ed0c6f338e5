package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/service"
	"labtool-ledger/internal/toolstate"

	"github.com/gorilla/mux"
)

const dateLayout = "2006-01-02"

// ToolHandler serves the tool catalogue and every workflow operation.
type ToolHandler struct {
	workflow service.WorkflowService
	loc      *time.Location
	clock    func() time.Time
}

func NewToolHandler(workflow service.WorkflowService, loc *time.Location, clock func() time.Time) *ToolHandler {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &ToolHandler{workflow: workflow, loc: loc, clock: clock}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewError(domain.ErrKindInvalidInput, "invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int32, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 32)
	if err != nil || id < 1 {
		return 0, domain.NewError(domain.ErrKindInvalidInput, "invalid %s", name)
	}
	return int32(id), nil
}

func queryInt(r *http.Request, name string, def int32) int32 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 32)
	if err != nil {
		return def
	}
	return int32(v)
}

// parseDate accepts RFC 3339 timestamps and plain dates. A plain date means
// the start of that day in the handler's zone.
func (h *ToolHandler) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, h.loc); err == nil {
		return t, nil
	}
	return time.Time{}, domain.NewError(domain.ErrKindInvalidDate, "date %q must be YYYY-MM-DD or RFC 3339", s)
}

func principal(r *http.Request) domain.Principal {
	p, _ := PrincipalFromContext(r.Context())
	return p
}

type createToolRequest struct {
	Code                    string `json:"code"`
	Name                    string `json:"name"`
	Category                string `json:"category"`
	StorageLocation         string `json:"storage_location"`
	Description             string `json:"description"`
	MaintenanceIntervalDays int32  `json:"maintenance_interval_days"`
}

func (h *ToolHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createToolRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tool, err := h.workflow.RegisterTool(r.Context(), principal(r), &domain.Tool{
		Code:                    req.Code,
		Name:                    req.Name,
		Category:                req.Category,
		StorageLocation:         req.StorageLocation,
		Description:             req.Description,
		MaintenanceIntervalDays: req.MaintenanceIntervalDays,
	}, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tool)
}

func (h *ToolHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.ToolStatus(r.URL.Query().Get("status"))
	tools, total, err := h.workflow.ListTools(r.Context(), status, queryInt(r, "page", 1), queryInt(r, "page_size", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	if tools == nil {
		tools = []domain.Tool{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools, "total": total})
}

func (h *ToolHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	tool, err := h.workflow.GetTool(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (h *ToolHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.workflow.ToolHistory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type borrowRequest struct {
	Purpose            string `json:"purpose"`
	ExpectedReturnDate string `json:"expected_return_date"`
}

func (h *ToolHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req borrowRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	due, err := h.parseDate(req.ExpectedReturnDate)
	if err != nil {
		writeError(w, err)
		return
	}
	txn, err := h.workflow.Borrow(r.Context(), principal(r), id, req.Purpose, due, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

type extendRequest struct {
	NewReturnDate string `json:"new_return_date"`
	Reason        string `json:"reason"`
}

func (h *ToolHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req extendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	due, err := h.parseDate(req.NewReturnDate)
	if err != nil {
		writeError(w, err)
		return
	}
	txn, err := h.workflow.Extend(r.Context(), principal(r), id, due, req.Reason, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

type returnRequest struct {
	Condition string `json:"condition"`
	Notes     string `json:"notes"`
}

func (h *ToolHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req returnRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.workflow.Return(r.Context(), principal(r), id, req.Condition, req.Notes, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *ToolHandler) ScheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req notesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.workflow.ScheduleMaintenance(r.Context(), principal(r), id, req.Notes, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *ToolHandler) CompleteMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req notesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.workflow.CompleteMaintenance(r.Context(), principal(r), id, req.Notes, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type statusRequest struct {
	Event string `json:"event"`
}

func (h *ToolHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	event, ok := toolstate.ParseEvent(req.Event)
	if !ok {
		writeError(w, domain.NewError(domain.ErrKindInvalidInput, "unknown event %q", req.Event))
		return
	}
	status, err := h.workflow.Transition(r.Context(), principal(r), id, event, h.clock())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool_id": id, "status": status})
}

type NotificationHandler struct {
	notifications service.NotificationService
}

func NewNotificationHandler(notifications service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, total, err := h.notifications.GetNotifications(r.Context(), principal(r), queryInt(r, "page", 1), queryInt(r, "page_size", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes, "total": total})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.notifications.MarkAsRead(r.Context(), principal(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
