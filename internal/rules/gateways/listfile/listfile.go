package listfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haukened/hydirect/internal/rules/common/clock"
	"github.com/haukened/hydirect/internal/rules/common/log"
)

// TimestampLayout is the format of the update time header line.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	// ErrNoPath is returned by New when no output path is configured.
	ErrNoPath = errors.New("output path is empty")
	// ErrNoRules guards against ever writing a list without rules.
	ErrNoRules = errors.New("refusing to write an empty rule list")
)

// Header describes the comment block written above the rules.
type Header struct {
	Title       string
	Description []string
	Updated     time.Time
	Count       int
}

// Render writes the header, a blank line, and one rule per line to w.
func Render(w io.Writer, h Header, lines []string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n", h.Title)
	fmt.Fprintf(bw, "# 更新时间: %s\n", h.Updated.Format(TimestampLayout))
	fmt.Fprintf(bw, "# 规则总数: %d (已去重)\n", h.Count)
	for _, d := range h.Description {
		fmt.Fprintf(bw, "# %s\n", strings.TrimSpace(d))
	}
	bw.WriteString("\n")
	for _, l := range lines {
		bw.WriteString(l)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

type Options struct {
	Path        string
	Title       string
	Description []string
	Location    *time.Location
	Clock       clock.Clock
	Logger      log.Logger
}

// Writer materializes a rule list file. Files are replaced atomically, so a
// reader never observes a partially written list.
type Writer struct {
	path        string
	title       string
	description []string
	location    *time.Location
	clock       clock.Clock
	logger      log.Logger
}

func New(opts Options) (*Writer, error) {
	if opts.Path == "" {
		return nil, ErrNoPath
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Writer{
		path:        opts.Path,
		title:       opts.Title,
		description: opts.Description,
		location:    opts.Location,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}, nil
}

// Path returns the destination file.
func (w *Writer) Path() string { return w.path }

// Write renders lines under a fresh header and replaces the destination file.
func (w *Writer) Write(lines []string) error {
	if len(lines) == 0 {
		return ErrNoRules
	}
	h := Header{
		Title:       w.title,
		Description: w.description,
		Updated:     w.clock.Now().In(w.location),
		Count:       len(lines),
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := Render(tmp, h, lines); err != nil {
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("replace %s: %w", w.path, err)
	}
	committed = true

	w.logger.Info(map[string]any{
		"path":    w.path,
		"rules":   len(lines),
		"updated": h.Updated.Format(TimestampLayout),
	}, "list file written")
	return nil
}
