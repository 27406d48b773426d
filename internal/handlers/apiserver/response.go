package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"relations-go/internal/apperrors"
)

// writeJSONResponse 将数据序列化为 JSON 并写入响应。
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}

// writeJSONError 写入一个通用的 JSON 错误响应。
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

// writeAppError maps the core error taxonomy onto HTTP statuses. Errors
// outside the taxonomy are treated as internal.
func writeAppError(w http.ResponseWriter, err error) {
	var (
		conflict  *apperrors.ConflictError
		notFound  *apperrors.NotFoundError
		limit     *apperrors.LimitExceeded
		policy    *apperrors.PolicyDisabledError
		external  *apperrors.ExternalServiceError
		fields    *apperrors.FieldErrors
		challenge *apperrors.CaptchaChallenge
	)
	switch {
	case errors.As(err, &fields):
		writeJSONResponse(w, http.StatusBadRequest, fields)
	case errors.As(err, &challenge):
		writeJSONResponse(w, http.StatusBadRequest, challenge)
	case errors.As(err, &conflict):
		writeJSONResponse(w, http.StatusConflict, map[string]string{"code": conflict.Code})
	case errors.As(err, &notFound):
		writeJSONResponse(w, http.StatusNotFound, map[string]string{"code": notFound.Code})
	case errors.As(err, &limit):
		writeJSONResponse(w, http.StatusForbidden, map[string]interface{}{"code": limit.Code, "limit": limit.Limit})
	case errors.As(err, &policy):
		writeJSONResponse(w, http.StatusForbidden, map[string]string{"code": policy.Code})
	case errors.As(err, &external):
		log.Printf("External service failure: %v", external)
		writeJSONError(w, "上游服务暂时不可用", http.StatusBadGateway)
	default:
		log.Printf("Internal error: %v", err)
		writeJSONError(w, "内部服务器错误", http.StatusInternalServerError)
	}
}
