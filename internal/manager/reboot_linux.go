//go:build linux

package manager

import "golang.org/x/sys/unix"

// reboot issues the host reboot(2) syscall matching mode, the Go-native
// equivalent of the original's nix::sys::reboot::reboot(RebootMode).
// StateSwitchRoot and StateOk never reach here; Shutdown only calls this
// for the reboot-class states.
func reboot(mode State) error {
	var cmd int
	switch mode {
	case StateReboot:
		cmd = unix.LINUX_REBOOT_CMD_RESTART
	case StatePowerOff:
		cmd = unix.LINUX_REBOOT_CMD_POWER_OFF
	case StateHalt:
		cmd = unix.LINUX_REBOOT_CMD_HALT
	case StateKExec:
		cmd = unix.LINUX_REBOOT_CMD_KEXEC
	case StateSuspend:
		cmd = unix.LINUX_REBOOT_CMD_SW_SUSPEND
	default:
		return nil
	}
	return unix.Reboot(cmd)
}
