package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"relations-go/internal/middleware"
	"relations-go/internal/services"
)

// RelationshipHandler handles HTTP requests for relationship intents.
type RelationshipHandler struct {
	relService services.RelationshipService
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(rs services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relService: rs}
}

// AddByHandlePayload is the body for requesting a friend by handle.
type AddByHandlePayload struct {
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// ListRelationshipsHandler handles GET /api/v1/relationships
func (h *RelationshipHandler) ListRelationshipsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	entries, err := h.relService.ListRelationships(r.Context(), ownerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, entries)
}

// RequestOrAcceptHandler handles PUT /api/v1/relationships/{userID}
func (h *RelationshipHandler) RequestOrAcceptHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, targetID, ok := h.pairFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.relService.RequestOrAccept(r.Context(), ownerID, targetID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusNoContent, nil)
}

// RequestByHandleHandler handles POST /api/v1/relationships
func (h *RelationshipHandler) RequestByHandleHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload AddByHandlePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.Username == "" {
		writeJSONError(w, "缺少用户名 (username)", http.StatusBadRequest)
		return
	}

	if err := h.relService.RequestOrAcceptByHandle(r.Context(), ownerID, payload.Username, payload.Discriminator); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusNoContent, nil)
}

// BlockHandler handles PUT /api/v1/relationships/{userID}/block
func (h *RelationshipHandler) BlockHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, targetID, ok := h.pairFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.relService.Block(r.Context(), ownerID, targetID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusNoContent, nil)
}

// RemoveHandler handles DELETE /api/v1/relationships/{userID}
func (h *RelationshipHandler) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, targetID, ok := h.pairFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.relService.Remove(r.Context(), ownerID, targetID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusNoContent, nil)
}

// pairFromRequest extracts the authenticated owner and the {userID} path
// variable. Writes the error response itself when either is missing.
func (h *RelationshipHandler) pairFromRequest(w http.ResponseWriter, r *http.Request) (ownerID, targetID uint, ok bool) {
	ownerID, ok = middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return 0, 0, false
	}

	vars := mux.Vars(r)
	targetIDStr, present := vars["userID"]
	if !present {
		writeJSONError(w, "缺少目标用户ID", http.StatusBadRequest)
		return 0, 0, false
	}
	parsed, err := strconv.ParseUint(targetIDStr, 10, 32)
	if err != nil {
		writeJSONError(w, "无效的目标用户ID格式", http.StatusBadRequest)
		return 0, 0, false
	}
	return ownerID, uint(parsed), true
}
