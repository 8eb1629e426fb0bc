package broadcast

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// zapAdapter lets watermill log through zap.
type zapAdapter struct {
	log *zap.SugaredLogger
}

// NewWatermillLogger adapts a zap logger to watermill.LoggerAdapter.
func NewWatermillLogger(log *zap.SugaredLogger) watermill.LoggerAdapter {
	return &zapAdapter{log: log}
}

func fieldsToArgs(fields watermill.LogFields) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (a *zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Errorw(msg, append(fieldsToArgs(fields), "error", err)...)
}

func (a *zapAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Infow(msg, fieldsToArgs(fields)...)
}

func (a *zapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debugw(msg, fieldsToArgs(fields)...)
}

// Trace maps to debug; zap has no lower level.
func (a *zapAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debugw(msg, fieldsToArgs(fields)...)
}

func (a *zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zapAdapter{log: a.log.With(fieldsToArgs(fields)...)}
}
