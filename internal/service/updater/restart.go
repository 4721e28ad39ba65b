package updater

import (
	"fmt"
	"os"
	"os/exec"
)

// Replacer replaces the running process with a fresh launch of an executable.
// On success it does not return.
type Replacer interface {
	Replace(path string, args, env []string) error
}

// Restart relaunches the installed executable with args and the current
// environment, using the replacement strategy of this platform.
func Restart(args []string) error {
	path, err := CurrentExecutable()
	if err != nil {
		return err
	}

	return RestartWith(defaultReplacer(), path, append([]string{path}, args...), os.Environ())
}

// RestartWith relaunches path through r.
func RestartWith(r Replacer, path string, args, env []string) error {
	if len(args) == 0 {
		args = []string{path}
	}

	if err := r.Replace(path, args, env); err != nil {
		return fmt.Errorf("%w: restart %s: %w", ErrProcess, path, err)
	}

	return nil
}

// spawnReplacer starts a detached child and exits the current process. It is
// used where the process image cannot be replaced in place.
type spawnReplacer struct {
	exit func(code int)
}

func (s spawnReplacer) Replace(path string, args, env []string) error {
	cmd := exec.Command(path, args[1:]...) //nolint:gosec // path is the installed executable.
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	if err := cmd.Process.Release(); err != nil {
		return err
	}

	s.exit(0)

	return nil
}
