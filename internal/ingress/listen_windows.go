//go:build windows

package ingress

import (
	"net"

	"github.com/Microsoft/go-winio"
)

// pipeSecurity limits pipe access to SYSTEM, Administrators, and the
// creator-owner. SDDL: D:(ACE)... grants GA (generic all) to each.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GA;;;BA)(A;;GA;;;CO)"

// listen creates the named pipe. winio fails the call itself when another
// process already owns the pipe name, which covers the live-daemon check.
func listen(name string) (net.Listener, error) {
	return winio.ListenPipe(name, &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
		MessageMode:        false,
		InputBufferSize:    64 * 1024,
	})
}
