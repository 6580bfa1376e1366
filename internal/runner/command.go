package runner

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/jmou/knit/internal/attr"
)

// jobEnviron decodes a Job's own attribute encoding back into a flat
// key=value environment: every attribute field (process, in/<path>,
// inref/<path>) becomes an environment variable visible to the command,
// exactly as original_source/src/execution.rs's JobRunner::from_job does
// via `Attributes::from_reader`. Slashes in a key are unusual for a shell
// variable name but perfectly legal as an environment variable name, and
// the original makes the same choice.
func jobEnviron(jobBytes []byte) ([]string, error) {
	fields, err := attr.Parse(bytes.NewReader(jobBytes))
	if err != nil {
		return nil, err
	}
	var env []string
	for key, value := range fields.Remaining() {
		env = append(env, key+"="+value)
	}
	return env, nil
}

// runShell runs command via /bin/bash -c in dir with extraEnv appended to
// the inherited environment. stderr is inherited straight through to the
// runner's own stderr; only stdout is captured, becoming the job's log. A
// nonzero exit is not an error: it is reported as the returned exit code,
// matching run_command's treatment of process exit status as data, not
// failure.
func runShell(command string, extraEnv []string, dir string) (int32, []byte, error) {
	cmd := exec.Command("/bin/bash", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), extraEnv...)
	cmd.Stderr = os.Stderr

	output, err := cmd.Output()
	if err == nil {
		return 0, output, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return -int32(ws.Signal()), output, nil
		}
		return int32(exitErr.ExitCode()), output, nil
	}
	return 0, output, fmt.Errorf("runner: exec %q: %w", command, err)
}
