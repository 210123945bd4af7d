package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"phofmit/internal/app"
	"phofmit/internal/phofmit"
)

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot PATH",
	Short: "Scan a folder and write a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		template, _ := cmd.Flags().GetString("snapshot-filename")
		options, _ := cmd.Flags().GetStringArray("option")
		storeName, _ := cmd.Flags().GetString("store")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp("snapshot", args, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		start := time.Now()
		fmt.Printf("Scanning folder %s...\n", args[0])
		snap, err := a.Snapshot(ctx, args[0], options)
		if err != nil {
			return fmt.Errorf("scanning: %w", err)
		}

		locator, err := a.SaveSnapshot(ctx, snap, app.SaveOptions{
			Template: template,
			Store:    storeName,
			Encrypt:  encrypt,
		})
		if err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}

		var total int64
		for _, f := range snap.Files {
			if f.Size != nil {
				total += *f.Size
			}
		}
		fmt.Printf("Snapshot of %d file(s) (%s) written to %s\n", len(snap.Files), humanize.IBytes(uint64(total)), locator)
		fmt.Printf("Finished in %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// mirror command
var mirrorCmd = &cobra.Command{
	Use:   "mirror SNAPSHOT [PATH]",
	Short: "Move files in PATH to the locations recorded in SNAPSHOT",
	Long: `Move files in PATH to the locations recorded in SNAPSHOT.

SNAPSHOT is a snapshot file or STORE:KEY for a snapshot held in a configured
store. With --shell nothing is moved: the equivalent shell script is written
to stdout and all other output goes to stderr.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		shell, _ := cmd.Flags().GetBool("shell")
		targetSnapshot, _ := cmd.Flags().GetString("target-snapshot")
		options, _ := cmd.Flags().GetStringArray("option")
		dirMode, _ := cmd.Flags().GetString("dir-mode")
		yes, _ := cmd.Flags().GetBool("yes")
		useCache, _ := cmd.Flags().GetBool("cache")

		path := ""
		if len(args) > 1 {
			path = args[1]
		}
		if path == "" && targetSnapshot == "" {
			return fmt.Errorf("%w: a PATH is required unless --target-snapshot is given", phofmit.ErrInvalidPath)
		}

		// The script owns stdout in shell mode.
		var out, logOut io.Writer = os.Stdout, os.Stdout
		if shell {
			logOut = os.Stderr
		}

		a, err := newApp("mirror", args, app.Options{Confirm: confirmerFor(yes)})
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintf(logOut, "Using snapshot %s.\n", args[0])
		if targetSnapshot != "" {
			fmt.Fprintf(logOut, "Using target snapshot %s.\n", targetSnapshot)
		} else {
			fmt.Fprintf(logOut, "Target folder is %s.\n", path)
		}
		if dryRun {
			fmt.Fprintln(logOut, color.BlueString("DRY-RUN ENABLED."))
		}

		res, err := a.Mirror(cmd.Context(), app.MirrorOptions{
			Reference:      args[0],
			TargetPath:     path,
			TargetSnapshot: targetSnapshot,
			Options:        options,
			DryRun:         dryRun,
			Shell:          shell,
			DirMode:        dirMode,
			UseCache:       useCache,
			Output:         out,
			Color:          !shell && shouldColorize(os.Stdout),
		})
		if err != nil {
			return err
		}

		printMirrorSummary(logOut, res)
		return nil
	},
}

func printMirrorSummary(w io.Writer, res *phofmit.MirrorResult) {
	if res.CacheHit {
		fmt.Fprintln(w, "Target snapshot taken from the scan cache.")
	}
	fmt.Fprintf(w, "%d target file(s) found with matching reference.\n", len(res.Diff.Matches))
	if n := len(res.Diff.Ambiguous); n > 0 {
		fmt.Fprintf(w, "%d target file(s) matched several reference files and were left alone.\n", n)
	}
	if n := len(res.Diff.Unmatched); n > 0 {
		fmt.Fprintf(w, "%d target file(s) had no match in the reference.\n", n)
	}

	var parts []string
	for _, o := range []phofmit.Outcome{
		phofmit.OutcomeMoved, phofmit.OutcomeAlreadyPlaced, phofmit.OutcomeConflict,
		phofmit.OutcomeDeclined, phofmit.OutcomeDryRun, phofmit.OutcomeFailed, phofmit.OutcomeEmitted,
	} {
		if n := res.Outcomes[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", o, n))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintln(w, strings.Join(parts, ", "))
	}
	fmt.Fprintf(w, "Finished in %s\n", res.Elapsed.Round(time.Millisecond))
}

// diff command
var diffCmd = &cobra.Command{
	Use:   "diff REFERENCE TARGET",
	Short: "Show which target files match the reference, without moving anything",
	Long: `Show which target files match the reference, without moving anything.

REFERENCE is a snapshot file or STORE:KEY. TARGET is either a snapshot or a
folder, which is then scanned with the reference's scanner options.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		options, _ := cmd.Flags().GetStringArray("option")
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp("diff", args, app.Options{Confirm: confirmerFor(yes)})
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Diff(cmd.Context(), args[0], args[1], options)
		if err != nil {
			return err
		}
		printDiff(os.Stdout, d)
		return nil
	},
}

func printDiff(w io.Writer, d *phofmit.DiffResult) {
	if len(d.Matches) == 0 {
		fmt.Fprintln(w, "No matching files.")
	} else {
		rows := make([][]string, 0, len(d.Matches))
		for _, m := range d.Matches {
			status := "move"
			if m.AlreadyPlaced() {
				status = "in place"
			}
			rows = append(rows, []string{m.Target.Path, m.Reference.Path, formatSize(m.Target.Size), status})
		}
		fmt.Fprintln(w, renderTable(
			[]string{"Target", "Reference", "Size", "Status"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(d.Ambiguous) > 0 {
		rows := make([][]string, 0, len(d.Ambiguous))
		for _, amb := range d.Ambiguous {
			rows = append(rows, []string{amb.TargetPath, strings.Join(amb.CandidatePaths, "\n")})
		}
		fmt.Fprintln(w, "Ambiguous:")
		fmt.Fprintln(w, renderTable([]string{"Target", "Candidates"}, rows, nil))
	}

	if verbosity >= 1 {
		for _, p := range d.Unmatched {
			fmt.Fprintf(w, "unmatched: %s\n", p)
		}
	}
	fmt.Fprintf(w, "%d matched, %d ambiguous, %d unmatched", len(d.Matches), len(d.Ambiguous), len(d.Unmatched))
	if d.Skipped > 0 {
		fmt.Fprintf(w, ", %d malformed record(s) skipped", d.Skipped)
	}
	fmt.Fprintln(w)
}

func formatSize(size *int64) string {
	if size == nil {
		return "-"
	}
	return humanize.IBytes(uint64(*size))
}

func init() {
	snapshotCmd.Flags().StringP("snapshot-filename", "f", "",
		"Snapshot filename template; {hostname}, {path} and {now} are expanded (default from config)")
	snapshotCmd.Flags().StringArrayP("option", "o", nil, "Scanner option as KEY=VALUE (repeatable)")
	snapshotCmd.Flags().String("store", "", "Upload the snapshot to this configured store instead of writing a file")
	snapshotCmd.Flags().Bool("encrypt", false, "Encrypt the snapshot with the configured age key")

	mirrorCmd.Flags().BoolP("dry-run", "N", false, "Do not apply changes, only show what would be done")
	mirrorCmd.Flags().BoolP("shell", "s", false, "Print shell commands instead of moving files")
	mirrorCmd.Flags().StringP("target-snapshot", "t", "", "Use this target snapshot instead of scanning PATH")
	mirrorCmd.Flags().StringArrayP("option", "o", nil, "Scanner option as KEY=VALUE (repeatable)")
	mirrorCmd.Flags().StringP("dir-mode", "d", "", "Mode for directories created while mirroring (default from config, 0777)")
	mirrorCmd.Flags().BoolP("yes", "y", false, "Do not ask before each move")
	mirrorCmd.Flags().Bool("cache", false, "Reuse and record target scans in the scan cache")

	diffCmd.Flags().StringArrayP("option", "o", nil, "Scanner option as KEY=VALUE (repeatable)")
	diffCmd.Flags().BoolP("yes", "y", false, "Continue without asking when scanner configs differ")
}
