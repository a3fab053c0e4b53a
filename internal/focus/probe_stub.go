//go:build !darwin && !linux && !windows

package focus

import "context"

type stubProber struct{}

// NewProber returns a prober that never reports a frontmost terminal.
func NewProber() Prober {
	return stubProber{}
}

func (stubProber) FrontmostTerminal(context.Context) ([]string, error) {
	return nil, nil
}
