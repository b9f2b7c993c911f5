//go:build !unix

package lockfile

// isProcessRunning is best-effort outside unix: there is no portable,
// dependency-free signal-0 probe, so a positive PID is assumed live.
// TryRepoLock's flock-based check is authoritative on these platforms;
// this fallback only affects checkPIDFile's plain-PID-file path.
func isProcessRunning(pid int) bool {
	return pid > 0
}
