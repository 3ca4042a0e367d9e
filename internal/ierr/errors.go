package ierr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrUpstream       = errors.New("upstream service failed")
	ErrUnavailable    = errors.New("service temporarily unavailable")
	ErrInternalServer = errors.New("internal server error")
)

// domainError carries a user-facing message and unwraps to one of the kinds above.
type domainError struct {
	kind error
	msg  string
}

func (e *domainError) Error() string { return e.msg }
func (e *domainError) Unwrap() error { return e.kind }

func newDomainError(kind error, msg string) error {
	return &domainError{kind: kind, msg: msg}
}

var (
	ErrInvalidLicenseKey = newDomainError(ErrValidation, "license key must match XXXX-XXXX-XXXX-XXXX")
	ErrWeakPassword      = newDomainError(ErrValidation, "password must be between 8 and 100 characters")
	ErrInvalidSignature  = newDomainError(ErrValidation, "webhook signature verification failed")
	ErrUnknownProduct    = newDomainError(ErrValidation, "product is not mapped to a license plan")

	ErrLicenseNotFound = newDomainError(ErrNotFound, "license not found")
	ErrInvalidLicense  = newDomainError(ErrNotFound, "no license matches this license key and email")
	ErrDeviceNotFound  = newDomainError(ErrNotFound, "device is not activated on this license")
	ErrTrialNotFound   = newDomainError(ErrNotFound, "no trial exists for this device")
	ErrAPIKeyNotFound  = newDomainError(ErrNotFound, "api key not found or disabled")
	ErrFeatureDisabled = newDomainError(ErrNotFound, "feature is not enabled")

	ErrMaxDevicesReached  = newDomainError(ErrConflict, "maximum number of devices reached for this license, deactivate a device first")
	ErrPasswordAlreadySet = newDomainError(ErrConflict, "a password is already set for this license, use password reset instead")
	ErrDuplicateTrial     = newDomainError(ErrConflict, "a trial already exists for this device")
	ErrDuplicateKey       = newDomainError(ErrConflict, "license key already exists")
	ErrIdentityLinked     = newDomainError(ErrConflict, "this account is already linked to another license")
	ErrNoSubscription     = newDomainError(ErrConflict, "license has no active subscription")
	ErrWebhookInFlight    = newDomainError(ErrConflict, "this webhook delivery is already being processed, retry later")

	ErrInvalidCredentials = newDomainError(ErrUnauthorized, "invalid email, license key or password")
	ErrInvalidSession     = newDomainError(ErrUnauthorized, "session is missing, invalid or expired")
	ErrInvalidToken       = newDomainError(ErrUnauthorized, "invalid or expired token")

	ErrLicenseInactive = newDomainError(ErrForbidden, "license is blocked or expired")

	ErrLicensePending = newDomainError(ErrUnavailable, "license for this event does not exist yet, retry later")
)

// RateLimitError is returned by the abuse guard when an operation's window is exhausted.
type RateLimitError struct {
	Operation  string
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many %s requests, retry in %s", e.Operation, FormatRetryAfter(e.RetryAfter))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// FormatRetryAfter renders a wait duration for humans, rounded up to whole seconds or minutes.
func FormatRetryAfter(d time.Duration) string {
	if d <= time.Second {
		return "1 second"
	}
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := (secs + 59) / 60
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
