package guard

import "errors"

var (
	// ErrSuperseded is returned for a navigation abandoned in favor of a newer one.
	ErrSuperseded = errors.New("guard: navigation superseded")
)
