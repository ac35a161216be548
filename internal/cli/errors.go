package cli

import "errors"

// ErrUsage matches errors caused by bad flags, arguments or config files.
var ErrUsage = errors.New("cli usage error")

// ErrCompile matches errors returned after a failed compilation has been
// reported.
var ErrCompile = errors.New("compilation failed")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	default:
		return 1
	}
}
