//go:build !darwin && !linux && !windows

package winctl

import "context"

// stubAdapter satisfies Adapter on platforms without window control. Every
// call reports ErrUnsupported so the router degrades gracefully.
type stubAdapter struct{}

func newPlatformAdapter() Adapter {
	return stubAdapter{}
}

func (stubAdapter) EnumerateDisplays(context.Context) ([]Display, error) {
	return nil, ErrUnsupported
}

func (stubAdapter) PositionWindow(context.Context, string, rect) error {
	return ErrUnsupported
}

func (stubAdapter) Activate(context.Context, string) error {
	return ErrUnsupported
}
