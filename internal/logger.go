package internal

import (
	"time"

	"go.uber.org/zap"

	"cmipay/entity"
	"cmipay/services"
)

// Logger is the service-wide LogHandler implementation. Console output goes
// through zap; when a database is attached, records are also persisted to
// the payment_log collection. The merchant store key must never be passed
// into any of its methods.
type Logger struct {
	name     string
	isDebug  bool
	zap      *zap.Logger
	database services.Database
}

func NewLogger(name string, isDebug bool, database services.Database) *Logger {
	conf := zap.NewProductionConfig()
	if isDebug {
		conf = zap.NewDevelopmentConfig()
	}
	conf.DisableStacktrace = true
	return &Logger{
		name:     name,
		isDebug:  isDebug,
		zap:      zap.Must(conf.Build()).With(zap.String("source", name)),
		database: database,
	}
}

func (l *Logger) Debug(message string) {
	if !l.isDebug {
		return
	}
	l.zap.Debug(message)
}

func (l *Logger) Info(message string) {
	l.zap.Info(message)
	l.persist("info", message, "")
}

func (l *Logger) Warn(message string) {
	l.zap.Warn(message)
	l.persist("warn", message, "")
}

func (l *Logger) Error(message string, err error) {
	l.zap.Error(message, zap.Error(err))
	text := ""
	if err != nil {
		text = err.Error()
	}
	l.persist("error", message, text)
}

func (l *Logger) persist(level, message, errText string) {
	if l.database == nil {
		return
	}
	record := &entity.LogMessage{
		Timestamp: time.Now(),
		Level:     level,
		Source:    l.name,
		Text:      message,
		Error:     errText,
	}
	if err := l.database.WriteLogMessage(record); err != nil {
		l.zap.Warn("write log record", zap.Error(err))
	}
}
