package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapturer struct {
	img   []byte
	err   error
	calls *[]string
}

func (f fakeCapturer) Capture(ctx context.Context) ([]byte, error) {
	*f.calls = append(*f.calls, "capture")
	return f.img, f.err
}

type recordingGuard struct {
	calls      *[]string
	excludeErr error
}

func (g recordingGuard) ExcludeFromCapture(ctx context.Context) error {
	*g.calls = append(*g.calls, "exclude")
	return g.excludeErr
}

func (g recordingGuard) IncludeInCapture(ctx context.Context) error {
	*g.calls = append(*g.calls, "include")
	return nil
}

func TestScreenshot_BracketsCapture(t *testing.T) {
	var calls []string
	d := NewDesktop(fakeCapturer{img: []byte("png"), calls: &calls}, recordingGuard{calls: &calls})

	img, err := d.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), img)
	assert.Equal(t, []string{"exclude", "capture", "include"}, calls)
}

func TestScreenshot_RestoresGuardOnFailure(t *testing.T) {
	var calls []string
	d := NewDesktop(fakeCapturer{err: errors.New("no display"), calls: &calls}, recordingGuard{calls: &calls})

	_, err := d.Screenshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no display")
	assert.Equal(t, []string{"exclude", "capture", "include"}, calls)
}

func TestScreenshot_ExcludeFailureSkipsCaptureAndRestores(t *testing.T) {
	var calls []string
	d := NewDesktop(fakeCapturer{img: []byte("png"), calls: &calls},
		recordingGuard{calls: &calls, excludeErr: errors.New("denied")})

	_, err := d.Screenshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	assert.Equal(t, []string{"exclude", "include"}, calls)
}

func TestCommand_WritesPlaceholderPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a posix shell")
	}
	script := filepath.Join(t.TempDir(), "shot.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf PNGDATA > \"$1\"\n"), 0o755))

	c, err := NewCommand(script + " {out}")
	require.NoError(t, err)

	b, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(b))
}

func TestCommand_FailureIncludesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a posix shell")
	}
	script := filepath.Join(t.TempDir(), "fail.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'cannot open display' >&2\nexit 3\n"), 0o755))

	c, err := NewCommand(script)
	require.NoError(t, err)

	_, err = c.Capture(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open display")
}

func TestHookGuard_RunsCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	assert.Nil(t, Hook("  "))

	g := HookGuard{Exclude: Hook("true"), Include: Hook("false")}
	assert.NoError(t, g.ExcludeFromCapture(context.Background()))
	assert.Error(t, g.IncludeInCapture(context.Background()))
	assert.NoError(t, HookGuard{}.IncludeInCapture(context.Background()))
}
