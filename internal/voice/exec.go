package voice

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// The command-backed implementations delegate to external speech tools
// (espeak-ng, say, a vosk transcriber script, ...). The command receives the
// speech tag as an argument; recognizers print the final transcript to
// stdout, synthesizers read the utterance text from stdin.

// CommandSynthesizer speaks by running an external program.
type CommandSynthesizer struct {
	command string
	args    []string
}

// NewCommandSynthesizer resolves the given command line. Returns
// ErrNotSupported if the program is not installed.
func NewCommandSynthesizer(commandLine string) (*CommandSynthesizer, error) {
	name, args, err := splitCommand(commandLine)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrNotSupported
	}
	return &CommandSynthesizer{command: name, args: args}, nil
}

func (s *CommandSynthesizer) Synthesize(ctx context.Context, text, speechTag string) error {
	args := append(append([]string(nil), s.args...), "-v", speechTag)
	cmd := exec.CommandContext(ctx, s.command, args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-utterance; not a failure.
			return nil
		}
		return fmt.Errorf("%s: %w: %s", s.command, err, bytes.TrimSpace(out))
	}
	return nil
}

// CommandRecognizer captures one utterance by running an external program
// that exits after printing the final transcript.
type CommandRecognizer struct {
	command string
	args    []string
}

// NewCommandRecognizer resolves the given command line. Returns
// ErrNotSupported if the program is not installed.
func NewCommandRecognizer(commandLine string) (*CommandRecognizer, error) {
	name, args, err := splitCommand(commandLine)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrNotSupported
	}
	return &CommandRecognizer{command: name, args: args}, nil
}

func (r *CommandRecognizer) Recognize(ctx context.Context, speechTag string) (string, error) {
	args := append(append([]string(nil), r.args...), "-l", speechTag)
	cmd := exec.CommandContext(ctx, r.command, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s: %w", r.command, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func splitCommand(commandLine string) (string, []string, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return "", nil, ErrNotSupported
	}
	return fields[0], fields[1:], nil
}
