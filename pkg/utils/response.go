package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondAccepted 命令已转交后端，结果稍后通过事件到达
func RespondAccepted(w http.ResponseWriter, callID string) {
	RespondJSON(w, http.StatusAccepted, map[string]string{
		"status": "requested",
		"callId": callID,
	})
}
