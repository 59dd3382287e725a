package errors

import "errors"

// AsError extracts an *Error from an error chain. Returns the *Error and
// true if found, or nil and false if the chain contains no *Error.
//
// Example:
//
//	if e, ok := errors.AsError(err); ok {
//	    status := e.HTTPStatus()
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code from an error chain, or CodeInternal if
// the chain contains no *Error. Calling GetCode on nil returns an empty
// code.
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether the error chain contains an *Error with the
// given code.
func HasCode(err error, code Code) bool {
	if e, ok := AsError(err); ok {
		return e.Code == code
	}
	return false
}

// IsAuthentication reports whether the error is an authentication
// rejection (AUTH category, HTTP 401).
func IsAuthentication(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Code.Category() == "AUTH"
	}
	return false
}

// IsValidation reports whether the error is a validation failure
// (VAL category, HTTP 400).
func IsValidation(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Code.Category() == "VAL"
	}
	return false
}

// IsUnavailable reports whether the error is an availability failure
// (UNAVAIL category, HTTP 503). KeyServiceUnavailable falls in this
// category.
func IsUnavailable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Code.Category() == "UNAVAIL"
	}
	return false
}

// IsInternal reports whether the error is an internal failure
// (INT category, HTTP 500).
func IsInternal(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Code.Category() == "INT"
	}
	return false
}

// IsTimeout reports whether the error is a timeout (TIMEOUT category,
// HTTP 504).
func IsTimeout(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Code.Category() == "TIMEOUT"
	}
	return false
}

// IsRetryable reports whether the operation that produced this error may
// succeed if retried. Availability and timeout failures are retryable;
// authentication rejections and validation failures are not.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		switch e.Code.Category() {
		case "UNAVAIL", "TIMEOUT":
			return true
		}
	}
	return false
}
