package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/majani/coop-engine/access"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/weighment"
)

// =============================================================================
// USERS AND SIGN-IN
// =============================================================================

// ListUsers returns staff accounts.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list users", err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveUser creates a staff account or changes an existing one's name or role.
// POST /api/users
func (h *Handler) SaveUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UserRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		h.fail(w, r, "Invalid role", err)
		return
	}
	u := access.User{Username: strings.TrimSpace(req.Username), Name: strings.TrimSpace(req.Name), Role: role}
	if err := u.Validate(); err != nil {
		h.fail(w, r, "Invalid user", err)
		return
	}

	dir, err := h.Store.Directory(ctx)
	if err != nil {
		h.fail(w, r, "Failed to load users", err)
		return
	}
	action, status := generic.AuditCreateUser, http.StatusCreated
	if existing, err := dir.Resolve(u.Username); err == nil && existing.Role != access.RoleFarmer {
		action, status = generic.AuditUpdateUser, http.StatusOK
	}

	if err := h.Store.SaveUser(ctx, u); err != nil {
		h.fail(w, r, "Failed to save user", err)
		return
	}
	h.audit(ctx, h.actor(r), action, fmt.Sprintf("%s as %s", u.Username, u.Role))

	writeJSON(w, status, toUserDTO(u))
}

// Login resolves a username (staff, or a farmer id for the portal) and
// returns the user and the workspace to open.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	dir, err := h.Store.Directory(ctx)
	if err != nil {
		h.fail(w, r, "Failed to load users", err)
		return
	}
	u, err := dir.Resolve(req.Username)
	if err != nil {
		h.fail(w, r, "User not found", err)
		return
	}
	h.audit(ctx, u, generic.AuditLogin, fmt.Sprintf("%s signed in to %s", u.Username, u.Role.Workspace()))

	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// Logout only records the event; there is no server-side session to drop.
// POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	u := h.actor(r)
	h.audit(r.Context(), u, generic.AuditLogout, u.Username+" signed out")
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CLERK SESSIONS
// =============================================================================

// GetSession returns the clerk's session. A session left open from an
// earlier day is discarded and reported as expired.
// GET /api/sessions/{clerk}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clerk := chi.URLParam(r, "clerk")

	sess, err := h.Store.GetSession(ctx, clerk)
	if err != nil {
		h.fail(w, r, "Failed to load session", err)
		return
	}
	sess, expired := sess.Restore(h.now(), h.Location)
	if expired {
		if err := h.Store.SaveSession(ctx, sess); err != nil {
			h.fail(w, r, "Failed to save session", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess, expired))
}

// OpenSession starts a fresh session, replacing any open one.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	sess := weighment.OpenSession(chi.URLParam(r, "clerk"), h.now())
	if err := h.Store.SaveSession(r.Context(), sess); err != nil {
		h.fail(w, r, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess, false))
}

// CloseSession ends the session and returns its summary.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.Store.GetSession(ctx, chi.URLParam(r, "clerk"))
	if err != nil {
		h.fail(w, r, "Failed to load session", err)
		return
	}
	sess = sess.Close()
	if err := h.Store.SaveSession(ctx, sess); err != nil {
		h.fail(w, r, "Failed to save session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess, false))
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAudit returns audit entries, newest first.
// GET /api/audit?user_id=clerk1&action=COLLECTION&from=2025-10-01&to=2025-10-31&limit=50
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := h.auditFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid audit query", err)
		return
	}
	entries, err := h.Store.Audit().Query(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to query audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) auditFilter(r *http.Request) (generic.AuditFilter, error) {
	q := r.URL.Query()
	var f generic.AuditFilter

	if v := q.Get("user_id"); v != "" {
		f.UserID = &v
	}
	for _, a := range q["action"] {
		f.Actions = append(f.Actions, generic.AuditAction(strings.ToUpper(a)))
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &generic.FieldError{Field: "limit", Message: "must be a non-negative integer"}
		}
		f.Limit = n
	}

	window, err := generic.NewDateWindow(q.Get("from"), q.Get("to"), h.Location)
	if err != nil {
		return f, err
	}
	if window.Start != nil {
		from := window.Start.StartIn(h.Location)
		f.From = &from
	}
	if window.End != nil {
		to := window.End.EndIn(h.Location)
		f.To = &to
	}
	return f, nil
}
