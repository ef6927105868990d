package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"position timeout", ErrPositionTimeout, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"rate limited", ErrRateLimited, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid trigger", ErrInvalidTrigger, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"connection in message", fmt.Errorf("connection refused"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"invalid trigger", ErrInvalidTrigger, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid trigger", ErrInvalidTrigger, true},
		{"invalid condition", ErrInvalidCondition, true},
		{"invalid action", ErrInvalidAction, true},
		{"unknown action", ErrUnknownAction, true},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil defaults to transient", nil, ErrorTransient},
		{"transient error", ErrConnectionLost, ErrorTransient},
		{"fatal error", ErrInvalidConfig, ErrorFatal},
		{"invalid error", ErrInvalidTrigger, ErrorInvalid},
		{"unknown defaults to transient", fmt.Errorf("mystery"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if Wrap(nil, "comp", "method", "action") != nil {
			t.Error("expected nil for nil error")
		}
	})

	t.Run("wraps with context pattern", func(t *testing.T) {
		base := errors.New("boom")
		wrapped := Wrap(base, "Registry", "Add", "validate trigger")
		if !errors.Is(wrapped, base) {
			t.Error("wrapped error should unwrap to base")
		}
		expected := "Registry.Add: validate trigger failed: boom"
		if wrapped.Error() != expected {
			t.Errorf("expected %q, got %q", expected, wrapped.Error())
		}
	})
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	t.Run("transient", func(t *testing.T) {
		err := WrapTransient(base, "Bus", "Publish", "mirror event")
		if !IsTransient(err) {
			t.Error("expected transient classification")
		}
		if !errors.Is(err, base) {
			t.Error("expected unwrap to base")
		}
	})

	t.Run("fatal", func(t *testing.T) {
		err := WrapFatal(base, "Engine", "Start", "connect")
		if !IsFatal(err) {
			t.Error("expected fatal classification")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		err := WrapInvalid(base, "Registry", "Add", "validate")
		if !IsInvalid(err) {
			t.Error("expected invalid classification")
		}
		if !strings.Contains(err.Error(), "Registry.Add") {
			t.Errorf("expected component context in message, got %q", err.Error())
		}
	})

	t.Run("nil passthrough", func(t *testing.T) {
		if WrapTransient(nil, "a", "b", "c") != nil ||
			WrapFatal(nil, "a", "b", "c") != nil ||
			WrapInvalid(nil, "a", "b", "c") != nil {
			t.Error("expected nil for nil error")
		}
	})
}
