package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/constants"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

// AdminHandler exposes the user registry and the attendance ledger.
type AdminHandler struct {
	ledger database.Ledger
	logger *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(ledger database.Ledger, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{ledger: ledger, logger: logger}
}

// UserResponse is a registered user without the reference image.
type UserResponse struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	Name         string    `json:"name"`
	Department   string    `json:"department"`
	RegisteredAt time.Time `json:"registered_at"`
	HasPhoto     bool      `json:"has_photo"`
}

func toUserResponse(u attendance.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		EmployeeID:   u.EmployeeID,
		Name:         u.Name,
		Department:   u.Department,
		RegisteredAt: u.RegisteredAt,
		HasPhoto:     len(u.FaceImage) > 0,
	}
}

// ListUsers returns registered users, optionally filtered by ?q= over
// name, employee id and department (case and diacritics insensitive).
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.ledger.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	query := r.URL.Query().Get("q")
	result := make([]UserResponse, 0, len(users))
	for _, u := range users {
		if attendance.MatchesQuery(u, query) {
			result = append(result, toUserResponse(u))
		}
	}
	respondJSON(w, http.StatusOK, result)
}

// UserPhoto serves the stored reference image.
func (h *AdminHandler) UserPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.ledger.GetUser(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get user", zap.String("user_id", sanitizeForLog(id)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if len(user.FaceImage) == 0 {
		respondError(w, http.StatusNotFound, "user has no photo")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(user.FaceImage)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(user.FaceImage)
}

// DeleteUser removes a user. Their attendance records are kept.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.ledger.DeleteUser(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete user", zap.String("user_id", sanitizeForLog(id)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	h.logger.Info("user deleted", zap.String("user_id", sanitizeForLog(id)))
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListRecords returns attendance records newest first, filtered by
// ?user_id= and capped by ?limit=.
func (h *AdminHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	filter := database.RecordFilter{
		UserID: r.URL.Query().Get("user_id"),
		Limit:  constants.DefaultRecordLimit,
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, constants.MaxRecordLimit)
	}

	records, err := h.ledger.ListRecords(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list records", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

// Export returns both collections, reference images included.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	users, err := h.ledger.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to export")
		return
	}
	records, err := h.ledger.ListRecords(r.Context(), database.RecordFilter{})
	if err != nil {
		h.logger.Error("failed to list records", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to export")
		return
	}
	if users == nil {
		users = []attendance.User{}
	}
	if records == nil {
		records = []attendance.Record{}
	}

	w.Header().Set("Content-Disposition", `attachment; filename="faceauth-export.json"`)
	respondJSON(w, http.StatusOK, database.Snapshot{Users: users, Records: records})
}

// ClearData removes every user and every record.
func (h *AdminHandler) ClearData(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.ClearAll(r.Context()); err != nil {
		h.logger.Error("failed to clear data", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to clear data")
		return
	}
	h.logger.Warn("all users and records cleared", zap.String("remote", sanitizeForLog(r.RemoteAddr)))
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
