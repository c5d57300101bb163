package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const outPlaceholder = "{out}"

// Command captures by running an external screenshot tool that writes a PNG
// to the path substituted for {out}.
type Command struct {
	Args []string
}

// NewCommand parses a command line such as "grim {out}". An empty line picks
// the platform default.
func NewCommand(line string) (*Command, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		args = defaultArgs(runtime.GOOS)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture: no default screenshot command for %s", runtime.GOOS)
	}
	return &Command{Args: args}, nil
}

func defaultArgs(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"screencapture", "-x", "-t", "png", outPlaceholder}
	case "linux":
		if _, err := exec.LookPath("grim"); err == nil {
			return []string{"grim", outPlaceholder}
		}
		return []string{"import", "-window", "root", outPlaceholder}
	default:
		return nil
	}
}

func (c *Command) Capture(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "kel-capture-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "screen.png")

	args := make([]string, len(c.Args))
	substituted := false
	for i, a := range c.Args {
		if strings.Contains(a, outPlaceholder) {
			substituted = true
		}
		args[i] = strings.ReplaceAll(a, outPlaceholder, out)
	}
	if !substituted {
		args = append(args, out)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if msg, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(msg)))
	}

	b, err := os.ReadFile(out)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s wrote no image", args[0])
	}
	return b, err
}

// Hook turns a command line into a guard hook; an empty line yields nil.
func Hook(line string) func(ctx context.Context) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		if msg, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(msg)))
		}
		return nil
	}
}
