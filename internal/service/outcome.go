package service

import (
	"go.uber.org/zap"
)

// Outcome reports a best-effort side effect. Callers log it and continue; a failed
// outcome never aborts the primary state transition.
type Outcome struct {
	Effect string
	Err    error
	Detail string
}

func succeeded(effect, detail string) Outcome {
	return Outcome{Effect: effect, Detail: detail}
}

func failed(effect string, err error) Outcome {
	return Outcome{Effect: effect, Err: err}
}

func skipped(effect, reason string) Outcome {
	return Outcome{Effect: effect, Detail: "skipped: " + reason}
}

// OK reports whether the effect completed or was deliberately skipped.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Log writes the outcome at Warn when it failed and Debug otherwise.
func (o Outcome) Log(logger *zap.Logger, fields ...zap.Field) {
	if logger == nil {
		return
	}
	fields = append(fields, zap.String("effect", o.Effect))
	if o.Detail != "" {
		fields = append(fields, zap.String("detail", o.Detail))
	}
	if o.Err != nil {
		logger.Warn("best-effort side effect failed", append(fields, zap.Error(o.Err))...)
		return
	}
	logger.Debug("side effect applied", fields...)
}
