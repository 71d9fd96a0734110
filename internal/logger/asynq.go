package logger

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// AsynqLogger routes asynq server logs through zerolog
type AsynqLogger struct {
	log zerolog.Logger
}

var _ asynq.Logger = (*AsynqLogger)(nil)

func NewAsynqLogger(log zerolog.Logger) *AsynqLogger {
	return &AsynqLogger{log: log.With().Str("component", "asynq").Logger()}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }

// AsynqLevel maps a config level name to asynq's log level
func AsynqLevel(level string) asynq.LogLevel {
	switch ParseLevel(level) {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return asynq.DebugLevel
	case zerolog.WarnLevel:
		return asynq.WarnLevel
	case zerolog.ErrorLevel:
		return asynq.ErrorLevel
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return asynq.FatalLevel
	}
	return asynq.InfoLevel
}
