package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zhouzirui/acoda/backend/internal/logger"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SendSSEEvent 发送带事件类型的SSE消息
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.WithComponent("sse").WithError(err).Warn("failed to marshal sse event data")
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		logger.WithComponent("sse").WithError(err).Debug("failed to write sse event")
		return
	}
	flusher.Flush()
}
