package domain

import (
	"errors"
	"fmt"
	"strings"
)

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// ConfigurationError reports gateway settings that must be present before a push.
type ConfigurationError struct {
	Missing []string
}

func (e ConfigurationError) Error() string {
	if len(e.Missing) == 0 {
		return "payment gateway is not configured"
	}
	return "payment gateway is not configured: missing " + strings.Join(e.Missing, ", ")
}

// GatewayError wraps network failures and explicit rejections from the payment gateway.
// RateLimited marks throttling responses; those never fail a payment.
type GatewayError struct {
	Op          string
	StatusCode  int
	Code        string
	Msg         string
	RateLimited bool
	Err         error
}

func (e GatewayError) Error() string {
	var b strings.Builder
	b.WriteString("gateway")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.RateLimited {
		b.WriteString(": rate limited")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(" [" + e.Code + "]")
	}
	switch {
	case e.Msg != "":
		b.WriteString(": " + e.Msg)
	case e.Err != nil:
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e GatewayError) Unwrap() error { return e.Err }

// NotificationError is captured per channel and attached to results, never returned to callers.
type NotificationError struct {
	Channel string
	Err     error
}

func (e NotificationError) Error() string {
	if e.Err == nil {
		return e.Channel + " notification failed"
	}
	return fmt.Sprintf("%s notification failed: %v", e.Channel, e.Err)
}

func (e NotificationError) Unwrap() error { return e.Err }

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

var ErrInvalidPhoneFormat = ValidationError{Field: "phone", Msg: "invalid phone format"}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConfiguration(err error) bool {
	var target ConfigurationError
	return errors.As(err, &target)
}

func IsGateway(err error) bool {
	var target GatewayError
	return errors.As(err, &target)
}

// IsRateLimited reports whether err is a throttling response from the gateway.
func IsRateLimited(err error) bool {
	var target GatewayError
	return errors.As(err, &target) && target.RateLimited
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}
