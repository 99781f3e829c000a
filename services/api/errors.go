package api

import (
	"context"
	"errors"
	"net/http"

	"pairs-backtest/proto"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/runner"
)

// Envelope maps an error to its HTTP status and wire payload.
func Envelope(err error) (int, *proto.ErrorPayload) {
	var ee *engine.Error
	if errors.As(err, &ee) {
		p := &proto.ErrorPayload{Code: string(ee.Kind), Message: ee.Message}
		if ee.Index >= 0 {
			p.Details = map[string]any{"index": ee.Index}
			if !ee.Date.IsZero() {
				p.Details["date"] = ee.Date.Format(proto.DateLayout)
			}
		}
		if ee.Kind == engine.KindConfiguration {
			return http.StatusBadRequest, p
		}
		return http.StatusUnprocessableEntity, p
	}

	switch {
	case errors.Is(err, runner.ErrInvalidRequest):
		return http.StatusBadRequest, &proto.ErrorPayload{Code: "INVALID_REQUEST", Message: err.Error()}
	case errors.Is(err, runner.ErrUnknownRun):
		return http.StatusNotFound, &proto.ErrorPayload{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, &proto.ErrorPayload{Code: "TIMEOUT", Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return 499, &proto.ErrorPayload{Code: "CANCELED", Message: err.Error()}
	}
	return http.StatusInternalServerError, &proto.ErrorPayload{Code: "INTERNAL", Message: err.Error()}
}
