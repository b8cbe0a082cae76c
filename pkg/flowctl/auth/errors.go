package auth

import (
	"errors"
	"fmt"
)

// ErrPortInUse is wrapped by StartCallbackListener when the port is taken.
var ErrPortInUse = errors.New("callback port already in use")

type FailureKind string

const (
	FailureNoClientID     FailureKind = "no_client_id"
	FailurePortInUse      FailureKind = "port_in_use"
	FailureListenerStart  FailureKind = "listener_start_failed"
	FailureTimeout        FailureKind = "timeout"
	FailureOAuth          FailureKind = "oauth_error"
	FailureTokenExchange  FailureKind = "token_exchange_failed"
	FailureMalformedToken FailureKind = "malformed_token_response"
)

// Failure describes why an authentication attempt did not produce a session.
type Failure struct {
	Kind    FailureKind
	Message string
	Port    int
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil && f.Message == "" {
		return fmt.Sprintf("authentication failed (%s): %v", f.Kind, f.Err)
	}
	if f.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("authentication failed (%s): %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Hint returns operator guidance for the failure, or an empty string.
func (f *Failure) Hint() string {
	switch f.Kind {
	case FailurePortInUse:
		return fmt.Sprintf("Close the application using port %[1]d, or pick another one with --port.\n"+
			"Check what is using it with: lsof -i :%[1]d (macOS/Linux) or netstat -ano | findstr :%[1]d (Windows)", f.Port)
	case FailureNoClientID:
		return "A Connected App consumer key (client id) is required."
	case FailureTimeout:
		return "Complete the login in your browser before the timeout expires."
	case FailureMalformedToken:
		return "Invalid response from Salesforce. Check your Connected App configuration."
	}
	return ""
}

// IsFailure reports whether err is an authentication failure of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var failure *Failure
	return errors.As(err, &failure) && failure.Kind == kind
}
