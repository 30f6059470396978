package portal

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyApplied = errors.New("you have already applied for this job")
	ErrJobNotOpen     = errors.New("job is not open for applications")
)

// ValidationError is a client-side validation failure. It is raised before
// any write happens and carries a message that can be shown next to the form.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
