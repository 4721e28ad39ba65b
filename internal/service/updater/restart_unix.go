//go:build unix

package updater

import "golang.org/x/sys/unix"

// execReplacer swaps the process image in place, keeping the process id.
type execReplacer struct{}

func (execReplacer) Replace(path string, args, env []string) error {
	return unix.Exec(path, args, env)
}

func defaultReplacer() Replacer {
	return execReplacer{}
}
