// Package event defines the fire-and-forget notification sink used for
// progress and error events, with log and WebSocket implementations.
package event

import "github.com/rs/zerolog"

// 事件名（WebSocket 推送的 event 字段）
const (
	EventProgress = "compute/progress"
	EventError    = "error"
)

// Sink 进度/错误通知出口。Emit 不要求确认，不返回错误。
type Sink interface {
	Emit(event string, payload any)
}

// LogSink 把事件写入结构化日志
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink 创建日志事件出口
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(event string, payload any) {
	s.log.Info().Str("event", event).Interface("payload", payload).Msg("event")
}

// Multi 依次转发给多个出口
type Multi []Sink

func (m Multi) Emit(event string, payload any) {
	for _, s := range m {
		s.Emit(event, payload)
	}
}

// Nop 丢弃所有事件，测试用
type Nop struct{}

func (Nop) Emit(string, any) {}
