package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log 是全局结构化日志实例。
var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetOutput(os.Stdout)
	Configure(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Configure 根据配置调整日志级别与输出格式，未知取值回退到 info/json。
func Configure(level, format string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "warn":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	default:
		Log.SetLevel(logrus.InfoLevel)
	}

	if strings.EqualFold(strings.TrimSpace(format), "text") {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
		return
	}

	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// WithComponent 返回带组件标签的日志条目，对应旧版 "[tag]" 前缀。
func WithComponent(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
