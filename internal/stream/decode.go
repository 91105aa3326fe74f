package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/arturn1/log-dashboard/internal/domain"
)

type wireEvent struct {
	Action     *string  `json:"action"`
	ActionID   *string  `json:"actionId"`
	UserID     *string  `json:"userId"`
	Session    *string  `json:"session"`
	Method     *string  `json:"method"`
	IP         *string  `json:"ip"`
	Route      *string  `json:"route"`
	StatusCode *float64 `json:"statusCode"`
	Duration   *float64 `json:"duration"`
	Time       *string  `json:"time"`
}

// Decode parses one inbound message into a LifecycleEvent. It has no side
// effects; failures are returned as *DecodeError.
func Decode(raw []byte) (domain.LifecycleEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.LifecycleEvent{}, &DecodeError{Err: ErrMalformedPayload}
	}
	var w wireEvent
	if err := json.Unmarshal(trimmed, &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.LifecycleEvent{}, &DecodeError{Field: typeErr.Field, Err: ErrInvalidField, Cause: err}
		}
		return domain.LifecycleEvent{}, &DecodeError{Err: ErrMalformedPayload, Cause: err}
	}

	if w.Action == nil {
		return domain.LifecycleEvent{}, &DecodeError{Field: "action", Err: ErrMissingField}
	}
	action := domain.Action(*w.Action)
	if !action.Valid() {
		return domain.LifecycleEvent{}, &DecodeError{Field: "action", Err: ErrInvalidAction}
	}
	if w.ActionID == nil || *w.ActionID == "" {
		return domain.LifecycleEvent{}, &DecodeError{Field: "actionId", Err: ErrMissingField}
	}
	if w.Method == nil {
		return domain.LifecycleEvent{}, &DecodeError{Field: "method", Err: ErrMissingField}
	}
	if w.Duration == nil {
		return domain.LifecycleEvent{}, &DecodeError{Field: "duration", Err: ErrMissingField}
	}

	e := domain.LifecycleEvent{
		Action:   action,
		ActionID: *w.ActionID,
		UserID:   deref(w.UserID),
		Session:  deref(w.Session),
		Method:   *w.Method,
		IP:       deref(w.IP),
		Route:    deref(w.Route),
		Duration: *w.Duration,
		Time:     deref(w.Time),
	}
	if w.StatusCode != nil {
		code := *w.StatusCode
		if code != math.Trunc(code) || code < math.MinInt32 || code > math.MaxInt32 {
			return domain.LifecycleEvent{}, &DecodeError{Field: "statusCode", Err: ErrInvalidField}
		}
		status := int(code)
		e.StatusCode = &status
	}
	return e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
