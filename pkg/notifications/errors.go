package notifications

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation           = errors.New("notifications: validation failed")
	ErrTemplate             = errors.New("notifications: template error")
	ErrTransientDelivery    = errors.New("notifications: transient delivery failure")
	ErrPermanentDelivery    = errors.New("notifications: permanent delivery failure")
	ErrScheduling           = errors.New("notifications: scheduling error")
	ErrNotFound             = errors.New("notifications: notification not found")
	ErrPreferenceNotFound   = errors.New("notifications: preference not found")
	ErrTemplateNotFound     = errors.New("notifications: template not found")
	ErrNoDestination        = errors.New("notifications: no destination for channel")
	ErrNoSink               = errors.New("notifications: no sink registered for channel")
	ErrNotCancellable       = errors.New("notifications: notification can no longer be cancelled")
	ErrEngineNotStarted     = errors.New("notifications: engine not started")
	ErrEngineAlreadyStarted = errors.New("notifications: engine already started")
	ErrInvalidTransition    = errors.New("notifications: invalid attempt state transition")
)

// ValidationError rejects a submission before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TemplateError is fatal for the attempt that hit it and is never retried.
type TemplateError struct {
	Ref     string
	Channel Channel
	Missing []string
	Err     error
}

func (e *TemplateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "template %q", e.Ref)
	if e.Channel != "" {
		fmt.Fprintf(&b, " (%s)", e.Channel)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing variables %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TemplateError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTemplate, e.Err}
	}
	return []error{ErrTemplate}
}

// DeliveryError is what sinks return when they know how to classify a
// failure. StatusCode is the upstream status, when there is one.
type DeliveryError struct {
	Permanent  bool
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	msg := kind + " delivery failure"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() []error {
	sentinel := ErrTransientDelivery
	if e.Permanent {
		sentinel = ErrPermanentDelivery
	}
	if e.Err != nil {
		return []error{sentinel, e.Err}
	}
	return []error{sentinel}
}

// Transient wraps err as a retryable delivery failure.
func Transient(err error, retryAfter time.Duration) error {
	return &DeliveryError{Err: err, RetryAfter: retryAfter}
}

// Permanent wraps err as a terminal delivery failure.
func Permanent(err error) error {
	return &DeliveryError{Permanent: true, Err: err}
}

// SchedulingError reports a preference that cannot be evaluated, such as
// an unknown quiet-hours timezone. Dispatch falls back to no quiet hours.
type SchedulingError struct {
	UserID   string
	Timezone string
	Err      error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("user %s: invalid timezone %q: %v", e.UserID, e.Timezone, e.Err)
}

func (e *SchedulingError) Unwrap() []error { return []error{ErrScheduling, e.Err} }

// Classification is the engine's view of a sink error.
type Classification int

const (
	ClassSuccess Classification = iota
	ClassTransient
	ClassPermanent
)

// ClassifyError decides whether a sink error is retried. Errors the engine
// cannot classify count as transient; the retry ceiling bounds them.
func ClassifyError(err error) (Classification, time.Duration) {
	if err == nil {
		return ClassSuccess, 0
	}

	var de *DeliveryError
	if errors.As(err, &de) {
		if de.Permanent {
			return ClassPermanent, 0
		}
		return ClassTransient, de.RetryAfter
	}

	switch {
	case errors.Is(err, ErrPermanentDelivery),
		errors.Is(err, ErrNoDestination),
		errors.Is(err, ErrNoSink),
		errors.Is(err, ErrTemplate):
		return ClassPermanent, 0
	}
	return ClassTransient, 0
}
