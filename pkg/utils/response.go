package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zhouzirui/acoda/backend/internal/logger"
	"github.com/zhouzirui/acoda/backend/pkg/validation"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithComponent("http").WithError(err).Warn("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondUnavailable 上游未配置或不可达，附带提示。
func RespondUnavailable(w http.ResponseWriter, message, hint string) {
	RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": message, "hint": hint})
}

// RespondValidationError 返回 400 与字段级错误详情。
func RespondValidationError(w http.ResponseWriter, err error) {
	details := []validation.FieldError{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		details = verrs
	} else if err != nil {
		details = append(details, validation.FieldError{Field: "body", Message: err.Error()})
	}
	RespondJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "Invalid request",
		"details": details,
	})
}

// DecodeJSON 解析 JSON 请求体，上限 1MB。
func DecodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := decoder.Decode(dst); err != nil {
		return errors.New("request body must be valid JSON")
	}
	return nil
}
