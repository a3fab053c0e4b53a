//go:build !darwin && !linux && !windows

package launcher

import (
	"context"
	"errors"
)

type stubLauncher struct{}

func newPlatformLauncher() Launcher { return stubLauncher{} }

func (stubLauncher) Launch(context.Context, Options) (string, error) {
	return "", errors.New("terminal launch not supported on this platform")
}
