// Package plugins holds the black-box collaborators the asset tasks invoke.
// Subpackages wrap in-process libraries; Command runs external tools such as
// sass and cwebp.
package plugins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/validation"
)

// Placeholders recognised in command arguments.
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
)

// DefaultTimeout bounds a single external invocation.
const DefaultTimeout = 2 * time.Minute

// Command is an external tool invocation template.
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// ParseCommand splits a command line on whitespace and validates the
// executable and every argument.
func ParseCommand(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ferrors.NewConfigError(ferrors.ErrCodeInvalidCommand, "command cannot be empty")
	}

	if err := validation.ValidateCommand(fields[0]); err != nil {
		return nil, ferrors.NewConfigError(ferrors.ErrCodeInvalidCommand, err.Error())
	}
	for _, arg := range fields[1:] {
		if err := validation.ValidateArgument(arg); err != nil {
			return nil, ferrors.NewConfigError(ferrors.ErrCodeInvalidCommand,
				fmt.Sprintf("invalid argument '%s': %v", arg, err))
		}
	}

	return &Command{Name: fields[0], Args: fields[1:], Timeout: DefaultTimeout}, nil
}

// String renders the command line template.
func (c *Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Available reports whether the executable can be found.
func (c *Command) Available() bool {
	_, err := exec.LookPath(c.Name)
	return err == nil
}

// Invocation is one run of a Command.
type Invocation struct {
	// Input is piped to stdin, or written to a temporary file when the
	// arguments reference {input} and InputPath is empty.
	Input []byte
	// InputPath replaces {input} with an existing file.
	InputPath string
	// InputExt and OutputExt name the temporary files.
	InputExt  string
	OutputExt string
	// Vars replaces {name} placeholders, for example {quality}.
	Vars map[string]string
	Dir  string
}

// Run executes the command and returns what it produced: the {output} file
// when the arguments reference one, stdout otherwise.
func (c *Command) Run(ctx context.Context, inv Invocation) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	usesInput := c.references(PlaceholderInput)
	usesOutput := c.references(PlaceholderOutput)

	var tmpDir string
	if (usesInput && inv.InputPath == "") || usesOutput {
		dir, err := os.MkdirTemp("", "assetforge-*")
		if err != nil {
			return nil, ferrors.NewIOError(ferrors.ErrCodeWriteFailed, "failed to create temporary directory", err)
		}
		tmpDir = dir
		defer os.RemoveAll(tmpDir)
	}

	inputPath := inv.InputPath
	if usesInput && inputPath == "" {
		inputPath = filepath.Join(tmpDir, "input"+inv.InputExt)
		if err := os.WriteFile(inputPath, inv.Input, 0o600); err != nil {
			return nil, ferrors.NewIOError(ferrors.ErrCodeWriteFailed, "failed to write temporary input", err)
		}
	}

	var outputPath string
	if usesOutput {
		outputPath = filepath.Join(tmpDir, "output"+inv.OutputExt)
	}

	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		arg = strings.ReplaceAll(arg, PlaceholderInput, inputPath)
		arg = strings.ReplaceAll(arg, PlaceholderOutput, outputPath)
		for key, value := range inv.Vars {
			arg = strings.ReplaceAll(arg, "{"+key+"}", value)
		}
		args[i] = arg
	}

	cmd := exec.CommandContext(ctx, c.Name, args...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = time.Second
	if !usesInput {
		cmd.Stdin = bytes.NewReader(inv.Input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ferrors.NewTransformError(ferrors.ErrCodeCommandFailed,
				fmt.Sprintf("%s timed out", c.Name), ctx.Err())
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ferrors.NewTransformError(ferrors.ErrCodeCommandFailed,
				fmt.Sprintf("%s not found in PATH", c.Name), err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, ferrors.NewTransformError(ferrors.ErrCodeCommandFailed,
			fmt.Sprintf("%s failed: %s", c.Name, msg), err)
	}

	if usesOutput {
		data, err := os.ReadFile(outputPath)
		if err != nil {
			return nil, ferrors.NewTransformError(ferrors.ErrCodeCommandFailed,
				fmt.Sprintf("%s produced no output", c.Name), err)
		}
		return data, nil
	}
	return stdout.Bytes(), nil
}

func (c *Command) references(placeholder string) bool {
	for _, arg := range c.Args {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}
