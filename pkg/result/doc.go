// Package result defines the failure taxonomy shared by every sense-go
// package and the Outcome type used when a value is delivered
// asynchronously.
//
// Synchronous operations follow the usual Go shape and return (T, error).
// The error is a *Error carrying a Kind, so callers can branch on the
// failure class without string matching:
//
//	v, err := proxy.TryGetReturnValue(id)
//	switch {
//	case errors.Is(err, result.ErrNotReady):
//	    // poll again later
//	case err != nil:
//	    return err
//	}
//
// Outcome[T] carries exactly one of a value or an error. It is what the
// engine hands back through a pending call's reply path.
package result
