package clock

import "time"

// Clock supplies the server-side "now". Pull samples it before running its
// change queries so the returned cursor never postdates the result set; tests
// substitute a fake to pin cursor ordering.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}
