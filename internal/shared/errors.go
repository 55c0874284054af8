package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Session errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrSessionExpired   = fmt.Errorf("session expired")
	ErrMissingSession   = fmt.Errorf("no session available")

	// Portal and structural lookup errors
	ErrAPIRequest         = fmt.Errorf("portal request failed")
	ErrUnexpectedStatus   = fmt.Errorf("unexpected portal status")
	ErrInvalidPayload     = fmt.Errorf("unparsable portal response")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrSemesterUnresolved = fmt.Errorf("current semester could not be resolved")
	ErrCourseNotFound     = fmt.Errorf("course not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
