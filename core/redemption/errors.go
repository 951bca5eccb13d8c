package redemption

import (
	"errors"
	"fmt"

	"healthsnap/core/verification"
)

// Kind classifies why a redemption did not reach Ready.
type Kind string

const (
	KindNoToken            Kind = "NoToken"
	KindMalformed          Kind = "Malformed"
	KindVerificationFailed Kind = "VerificationFailed"
	KindExpired            Kind = "Expired"
	KindTimeout            Kind = "Timeout"
	KindAbandoned          Kind = "Abandoned"
)

var (
	ErrNoToken            = errors.New("no token obtained")
	ErrMalformed          = errors.New("malformed token")
	ErrVerificationFailed = errors.New("verification failed")
	ErrExpired            = errors.New("health snapshot expired")
	ErrTimeout            = errors.New("verification step timed out")
	ErrAbandoned          = errors.New("redemption abandoned")
)

var sentinels = map[Kind]error{
	KindNoToken:            ErrNoToken,
	KindMalformed:          ErrMalformed,
	KindVerificationFailed: ErrVerificationFailed,
	KindExpired:            ErrExpired,
	KindTimeout:            ErrTimeout,
	KindAbandoned:          ErrAbandoned,
}

// Error is the terminal error of a redemption attempt. StepID is set for
// VerificationFailed and Timeout.
type Error struct {
	Kind   Kind
	StepID verification.StepID
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StepID != "" {
		msg += "(" + string(e.StepID) + ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// Message is the text shown to the person redeeming the code.
func (e *Error) Message() string {
	switch e.Kind {
	case KindNoToken:
		return "No health snapshot code was found. Please scan again or upload a clearer image."
	case KindMalformed:
		return "This code could not be read. Please request a new one from the patient."
	case KindVerificationFailed:
		return fmt.Sprintf("This health snapshot could not be verified at step %q. The data may have been altered or its record is unreachable.", e.StepID)
	case KindExpired:
		return "This health snapshot has expired. Please request a new one from the patient."
	case KindTimeout:
		return fmt.Sprintf("Verification timed out at step %q. Please scan the code again.", e.StepID)
	case KindAbandoned:
		return "Verification was cancelled."
	default:
		return "Something went wrong while opening this health snapshot."
	}
}

// KindOf returns the kind of err, or "" if it is not a redemption error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
