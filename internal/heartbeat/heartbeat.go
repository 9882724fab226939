// Package heartbeat proves liveness through a file's modification time.
//
// A loop calls Touch on every iteration. A container HEALTHCHECK (or the
// in-process Watchdog) treats the loop as stuck once the file is older than
// its timeout. A missing file counts as stale.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrMissing = errors.New("heartbeat: file missing")

// StaleError reports a heartbeat older than the allowed age.
type StaleError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("heartbeat: stale (%s > %s)", e.Age.Round(time.Second), e.MaxAge)
}

// File is a heartbeat file at Path. The zero clock is time.Now.
type File struct {
	Path string
	now  func() time.Time
}

func New(path string) *File {
	return &File{Path: path, now: time.Now}
}

func (f *File) clock() time.Time {
	if f.now == nil {
		return time.Now()
	}
	return f.now()
}

// Touch writes the current unix time to the file and sets its mtime.
func (f *File) Touch() error {
	if f == nil || f.Path == "" {
		return errors.New("heartbeat: empty path")
	}
	now := f.clock()
	if err := os.WriteFile(f.Path, []byte(strconv.FormatInt(now.Unix(), 10)), 0o644); err != nil {
		return fmt.Errorf("heartbeat: write: %w", err)
	}
	if err := os.Chtimes(f.Path, now, now); err != nil {
		return fmt.Errorf("heartbeat: chtimes: %w", err)
	}
	return nil
}

// Age returns how long ago the file was last touched.
func (f *File) Age() (time.Duration, error) {
	if f == nil || f.Path == "" {
		return 0, errors.New("heartbeat: empty path")
	}
	st, err := os.Stat(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrMissing
		}
		return 0, fmt.Errorf("heartbeat: stat: %w", err)
	}
	return f.clock().Sub(st.ModTime()), nil
}

// Fresh returns nil when the file exists and is no older than maxAge.
func (f *File) Fresh(maxAge time.Duration) error {
	age, err := f.Age()
	if err != nil {
		return err
	}
	if age > maxAge {
		return &StaleError{Age: age, MaxAge: maxAge}
	}
	return nil
}

// Check adapts Fresh to the health.Check signature.
func (f *File) Check(maxAge time.Duration) func(context.Context) error {
	return func(context.Context) error { return f.Fresh(maxAge) }
}

// Watchdog polls the file every interval and returns a *StaleError once it
// has gone stale. A missing file is ignored until the first Touch. Returns
// ctx.Err() on cancel.
func (f *File) Watchdog(ctx context.Context, maxAge, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		var se *StaleError
		if err := f.Fresh(maxAge); errors.As(err, &se) {
			return err
		}
	}
}
