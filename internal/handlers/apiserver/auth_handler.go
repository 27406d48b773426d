package apiserver

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"relations-go/internal/services"
)

// AuthHandler 封装了注册相关的 HTTP 处理器方法。
type AuthHandler struct {
	registrationService services.RegistrationService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(registrationService services.RegistrationService) *AuthHandler {
	return &AuthHandler{registrationService: registrationService}
}

// Register 处理用户注册请求。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	result, err := h.registrationService.Register(r.Context(), req, callerIP(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, result)
}

// callerIP extracts the client address, preferring X-Forwarded-For when a
// proxy sits in front of the apiserver.
func callerIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
