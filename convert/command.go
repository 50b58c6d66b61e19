package convert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// Placeholders understood in analyzer and OCR command templates.
const (
	PlaceholderInput    = "${INPUT}"
	PlaceholderImageDir = "${IMAGE_DIR}"
	PlaceholderMethod   = "${METHOD}"
)

var placeholders = []string{PlaceholderInput, PlaceholderImageDir, PlaceholderMethod}

// SplitCommand securely splits a command string into a slice of arguments.
// It prevents shell injection by not using a shell.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command syntax: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}

// ValidateArgs rejects shell metacharacters outside of known placeholders
// and makes sure the input placeholder is present.
func ValidateArgs(args []string) error {
	hasInput := false
	for _, arg := range args {
		if strings.Contains(arg, PlaceholderInput) {
			hasInput = true
		}
		stripped := arg
		for _, p := range placeholders {
			stripped = strings.ReplaceAll(stripped, p, "")
		}
		if strings.ContainsAny(stripped, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}

	if !hasInput {
		return fmt.Errorf("command must include the input placeholder '%s'", PlaceholderInput)
	}
	return nil
}

// Command is a validated external program invocation template.
type Command struct {
	args []string
}

func NewCommand(template string) (*Command, error) {
	args, err := SplitCommand(template)
	if err != nil {
		return nil, err
	}
	if err := ValidateArgs(args); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("binary not found or not in PATH: %s", args[0])
	}
	return &Command{args: args}, nil
}

// Run substitutes vars into the template, runs it and returns its stdout.
func (c *Command) Run(ctx context.Context, vars map[string]string) (string, error) {
	args := make([]string, len(c.args))
	for i, arg := range c.args {
		for k, v := range vars {
			arg = strings.ReplaceAll(arg, k, v)
		}
		args[i] = arg
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("executing external command", "path", cmd.Path, "args", strings.Join(args[1:], " "))

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%s failed: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
