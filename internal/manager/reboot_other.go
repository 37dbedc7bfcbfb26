//go:build !linux

package manager

import "fmt"

// reboot has no portable equivalent off Linux; the manager logs and
// returns an error rather than pretending to have rebooted the host,
// matching the reactor package's own Linux-only/portable-fallback split.
func reboot(mode State) error {
	return fmt.Errorf("manager: reboot(%s) is only supported on linux", mode)
}
