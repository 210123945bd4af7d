package phofmit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

// DefaultDirMode is the permission mode of directories created while mirroring.
const DefaultDirMode fs.FileMode = 0o777

// Outcome is the final state of one match passed through a Mover.
type Outcome int

const (
	OutcomeAlreadyPlaced Outcome = iota
	OutcomeConflict
	OutcomeDeclined
	OutcomeDryRun
	OutcomeMoved
	OutcomeFailed
	OutcomeEmitted
)

var outcomeNames = map[Outcome]string{
	OutcomeAlreadyPlaced: "already-placed",
	OutcomeConflict:      "conflict",
	OutcomeDeclined:      "declined",
	OutcomeDryRun:        "dry-run",
	OutcomeMoved:         "moved",
	OutcomeFailed:        "failed",
	OutcomeEmitted:       "emitted",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Moved reports whether the file was actually relocated.
func (o Outcome) Moved() bool { return o == OutcomeMoved }

// Mover relocates (or describes relocating) one matched target file from
// currentPath to newPath. Failures are reported, never returned.
type Mover interface {
	MoveFile(currentPath, newPath string, match Match) Outcome
}

// Mode selects the Mover strategy of a run.
type Mode int

const (
	// ModeApply renames files on disk.
	ModeApply Mode = iota
	// ModeShell writes an equivalent shell script instead.
	ModeShell
)

// MoverOptions configures NewMover.
type MoverOptions struct {
	Mode    Mode
	DryRun  bool
	DirMode fs.FileMode
	// Output receives status lines (apply) or the script (shell).
	Output  io.Writer
	Logger  Logger
	Confirm Confirmer
	// Verbosity 0 prints only essential lines, 1 adds per-file lines, 2 adds
	// the matched attributes.
	Verbosity int
	// Color enables colored status lines in apply mode.
	Color  bool
	Locale Locale
}

// NewMover builds the Mover selected by opts.Mode.
func NewMover(opts MoverOptions) (Mover, error) {
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = NewNopLogger()
	}
	if opts.DirMode == 0 {
		opts.DirMode = DefaultDirMode
	}
	switch opts.Mode {
	case ModeApply:
		return NewApplyMover(opts), nil
	case ModeShell:
		if opts.DryRun {
			return nil, ErrConflictingModes
		}
		return NewShellMover(opts.Output, opts.DirMode, opts.Locale, opts.Verbosity), nil
	default:
		return nil, fmt.Errorf("unknown mover mode: %d", opts.Mode)
	}
}

// ApplyMover renames files in place. It never overwrites an existing file.
type ApplyMover struct {
	out       io.Writer
	logger    Logger
	confirm   Confirmer
	dirMode   fs.FileMode
	dryRun    bool
	verbosity int

	ok, warn, fail, info *color.Color
}

var _ Mover = (*ApplyMover)(nil)

// NewApplyMover creates an ApplyMover. A nil Confirm accepts every move.
func NewApplyMover(opts MoverOptions) *ApplyMover {
	m := &ApplyMover{
		out:       opts.Output,
		logger:    opts.Logger,
		confirm:   opts.Confirm,
		dirMode:   opts.DirMode,
		dryRun:    opts.DryRun,
		verbosity: opts.Verbosity,
		ok:        color.New(color.FgGreen),
		warn:      color.New(color.FgRed),
		fail:      color.New(color.FgRed, color.Bold),
		info:      color.New(color.FgBlue),
	}
	if m.out == nil {
		m.out = io.Discard
	}
	if m.logger == nil {
		m.logger = NewNopLogger()
	}
	if m.confirm == nil {
		m.confirm = AlwaysYes
	}
	if m.dirMode == 0 {
		m.dirMode = DefaultDirMode
	}
	for _, c := range []*color.Color{m.ok, m.warn, m.fail, m.info} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return m
}

// MoveFile implements Mover.
func (m *ApplyMover) MoveFile(currentPath, newPath string, match Match) Outcome {
	if m.verbosity >= 2 {
		fmt.Fprintf(m.out, "* FILE                  %s\n", match.Target.Describe())
		fmt.Fprintf(m.out, "  MATCHES FROM SNAPSHOT %s\n", match.Reference.Describe())
	}

	if match.AlreadyPlaced() || filepath.Clean(currentPath) == filepath.Clean(newPath) {
		if m.verbosity >= 1 {
			fmt.Fprintf(m.out, "  %s %s\n", match.Target.Path, m.ok.Sprint("✔ Already at the expected location."))
		}
		return OutcomeAlreadyPlaced
	}

	if m.verbosity >= 1 {
		fmt.Fprintf(m.out, "  %s => %s\n", match.Target.Path, match.Reference.Path)
	}

	if _, err := os.Lstat(newPath); err == nil {
		m.logger.Warn("a different file already exists at the destination, skipping",
			"from", currentPath, "to", newPath)
		fmt.Fprintf(m.out, "  %s\n", m.warn.Sprintf("✖ Cannot move %s: a file already exists at %s, skipping.", currentPath, newPath))
		return OutcomeConflict
	} else if !errors.Is(err, fs.ErrNotExist) {
		m.logger.Error("cannot inspect destination", "to", newPath, "error", err)
		fmt.Fprintf(m.out, "  %s\n", m.fail.Sprintf("✖ Could not inspect %s.", newPath))
		return OutcomeFailed
	}

	question := fmt.Sprintf("Move file from %s\n           to %s?", currentPath, newPath)
	if !m.confirm(question) {
		fmt.Fprintf(m.out, "  %s\n", m.info.Sprint("Skipped."))
		return OutcomeDeclined
	}

	if m.dryRun {
		fmt.Fprintf(m.out, "  %s\n", m.info.Sprint("✋ Dry-run enabled, keeping file in place."))
		return OutcomeDryRun
	}

	parent := filepath.Dir(newPath)
	if err := os.MkdirAll(parent, m.dirMode); err != nil {
		m.logger.Error("could not create directory", "path", parent, "error", err)
		fmt.Fprintf(m.out, "  %s\n", m.fail.Sprintf("✖ Could not create directory %s.", parent))
		return OutcomeFailed
	}

	if err := os.Rename(currentPath, newPath); err != nil {
		m.logger.Error("could not move file", "from", currentPath, "to", newPath, "error", err)
		fmt.Fprintf(m.out, "  %s\n", m.fail.Sprintf("✖ Could not move file from %s to %s.", currentPath, newPath))
		return OutcomeFailed
	}

	m.logger.Info("file moved", "from", currentPath, "to", newPath)
	fmt.Fprintf(m.out, "  %s\n", m.ok.Sprintf("✔ File %s moved successfully.", currentPath))
	return OutcomeMoved
}
