package main

import (
	"fmt"
	"os"
	"os/exec"
)

// envDetached marks the re-executed child so it serves instead of forking again.
const envDetached = "GEMINID_DETACHED"

func shouldDetach(flagSet bool, env string) bool {
	return flagSet && env == ""
}

// openDetachLog opens the file that receives the detached child's stdout and
// stderr, appending to earlier runs.
func openDetachLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func detachCommand(exe string, args []string, logFile *os.File) *exec.Cmd {
	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), envDetached+"=1")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = detachAttr()
	return cmd
}

// detachProcess re-executes the binary in a new session with output sent to
// logPath and returns the child pid without waiting for it.
func detachProcess(args []string, logPath string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	logFile, err := openDetachLog(logPath)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	cmd := detachCommand(exe, args, logFile)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", exe, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}
