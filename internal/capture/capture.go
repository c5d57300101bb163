// Package capture takes desktop screenshots for turns that ask for desktop
// context, keeping the app's own window out of the picture.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
)

// Capturer returns an encoded PNG of the whole desktop.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// WindowGuard toggles whether the app window shows up in screen captures.
type WindowGuard interface {
	ExcludeFromCapture(ctx context.Context) error
	IncludeInCapture(ctx context.Context) error
}

type Desktop struct {
	capturer Capturer
	guard    WindowGuard
}

func NewDesktop(c Capturer, g WindowGuard) *Desktop {
	if g == nil {
		g = NoopGuard{}
	}
	return &Desktop{capturer: c, guard: g}
}

// Screenshot captures the desktop as base64 PNG. The window guard is always
// restored, including when the capture fails.
func (d *Desktop) Screenshot(ctx context.Context) (img string, err error) {
	if d.capturer == nil {
		return "", errors.New("capture: no capturer configured")
	}
	// restore even when exclude fails partway
	defer func() {
		if rerr := d.guard.IncludeInCapture(context.WithoutCancel(ctx)); rerr != nil {
			log.Printf("capture: include window failed err=%v", rerr)
			if err == nil {
				err = fmt.Errorf("capture: include window: %w", rerr)
			}
		}
	}()
	if err := d.guard.ExcludeFromCapture(ctx); err != nil {
		return "", fmt.Errorf("capture: exclude window: %w", err)
	}

	raw, err := d.capturer.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("capture: empty image")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

type NoopGuard struct{}

func (NoopGuard) ExcludeFromCapture(context.Context) error { return nil }
func (NoopGuard) IncludeInCapture(context.Context) error   { return nil }

// HookGuard calls out to the window host, e.g. a shell that toggles content
// protection on the UI window. Nil hooks are skipped.
type HookGuard struct {
	Exclude func(ctx context.Context) error
	Include func(ctx context.Context) error
}

func (g HookGuard) ExcludeFromCapture(ctx context.Context) error {
	if g.Exclude == nil {
		return nil
	}
	return g.Exclude(ctx)
}

func (g HookGuard) IncludeInCapture(ctx context.Context) error {
	if g.Include == nil {
		return nil
	}
	return g.Include(ctx)
}
