package remote

import (
	"path/filepath"
	"strings"

	"github.com/alessio/shellescape"
)

// SudoPrompt is the password prompt requested from sudo on the
// device. It differs from sudo's default prompt so that the
// session output can be told apart from a local prompt.
const SudoPrompt = "[sudo] password for %u@%h: "

// TempDir is where files are copied to on the device.
const TempDir = "/tmp"

// Target is a device reachable over ssh.
type Target struct {
	User string
	Host string
	Port string
}

func (t Target) String() string {
	return t.User + "@" + t.Host
}

// Command is a single remote command as an argument list. It is
// only turned into shell syntax by String.
type Command []string

func (c Command) String() string {
	return shellescape.QuoteCommand(c)
}

// Sudo returns args as a command that is run as root, reading
// the password from stdin after printing SudoPrompt.
func Sudo(args ...string) Command {
	return append(Command{"sudo", "-p", SudoPrompt, "-S"}, args...)
}

// Script joins commands into a single shell snippet. Each
// command runs regardless of whether the previous one failed.
func Script(cmds ...Command) string {
	s := make([]string, len(cmds))
	for i, c := range cmds {
		s[i] = c.String()
	}
	return strings.Join(s, "; ")
}

// TempPaths returns where each of the local files ends up on
// the device after being copied to TempDir.
func TempPaths(files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = TempDir + "/" + filepath.Base(f)
	}
	return out
}
