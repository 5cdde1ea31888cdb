package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/reconcile"
	"github.com/bulog/serapan/internal/sheet"
)

// Exit codes shared by the commands.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitSchema  = 2
	ExitPartial = 10
)

// Runner executes a reconciliation session.
type Runner interface {
	Run(ctx context.Context, up reconcile.Upload, opts reconcile.Options) (*reconcile.Session, error)
}

// ImportOptions defines available flags for the import command.
type ImportOptions struct {
	Path            string
	Table           string
	Mode            string
	Strategy        string
	AsOf            string
	Confirm         bool
	RegisterOffices bool
	DryRun          bool
	JSONOutput      bool
	Stdout          io.Writer
	Stderr          io.Writer
}

// ImportSummary is the JSON output of the import command.
type ImportSummary struct {
	OK      bool               `json:"ok"`
	DryRun  bool               `json:"dry_run"`
	File    string             `json:"file"`
	Session *reconcile.Session `json:"session"`
}

// ImportCLI reconciles spreadsheet files from the command line.
type ImportCLI struct {
	runner Runner
}

// NewImportCLI wires the command to an engine.
func NewImportCLI(runner Runner) (*ImportCLI, error) {
	if runner == nil {
		return nil, errors.New("import cli: runner is required")
	}
	return &ImportCLI{runner: runner}, nil
}

// ImportCommand reads opts.Path, reconciles it and prints the report. It returns 0 on
// success, 2 when the file lacks required columns, 10 when some batches failed and 1
// for every other error.
func (c *ImportCLI) ImportCommand(ctx context.Context, opts ImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Path) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "import: a file argument is required")
		return ExitError
	}
	table, err := reconcile.ParseTable(opts.Table)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: --table must be realisasi, target_kanwil or target_kancab (got %q)\n", opts.Table)
		return ExitError
	}
	var asOf procurement.Date
	if opts.AsOf != "" {
		if asOf, err = procurement.ParseDate(opts.AsOf); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "import: invalid --as-of %q (expected YYYY-MM-DD)\n", opts.AsOf)
			return ExitError
		}
	}

	f, err := os.Open(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return ExitError
	}
	defer f.Close()
	upload, err := reconcile.ReadUpload(f, filepath.Base(opts.Path), table, asOf)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		return exitCodeFor(err)
	}

	session, err := c.runner.Run(ctx, upload, reconcile.Options{
		Mode:            reconcile.Mode(strings.ToLower(opts.Mode)),
		Strategy:        reconcile.Strategy(strings.ToLower(opts.Strategy)),
		ConfirmReplace:  opts.Confirm,
		RegisterOffices: opts.RegisterOffices,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: %v\n", err)
		if session != nil {
			_ = printImport(opts, session, false)
		}
		return exitCodeFor(err)
	}

	if err := printImport(opts, session, !session.Report.Partial()); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import: encode json: %v\n", err)
		return ExitError
	}
	if session.Report.Partial() {
		return ExitPartial
	}
	return ExitOK
}

func printImport(opts ImportOptions, session *reconcile.Session, ok bool) error {
	if opts.JSONOutput {
		summary := ImportSummary{OK: ok, DryRun: opts.DryRun, File: opts.Path, Session: session}
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	renderImportHuman(opts.Stdout, opts, session)
	return nil
}

func exitCodeFor(err error) int {
	var missing *sheet.MissingColumnsError
	if errors.As(err, &missing) {
		return ExitSchema
	}
	return ExitError
}

func renderImportHuman(out io.Writer, opts ImportOptions, session *reconcile.Session) {
	r := session.Report
	label := ""
	if opts.DryRun {
		label = " (dry run, nothing written)"
	}
	_, _ = fmt.Fprintf(out, "Import %s into %s%s\n", filepath.Base(opts.Path), session.Table, label)
	_, _ = fmt.Fprintf(out, "mode=%s strategy=%s state=%s elapsed=%s\n", session.Mode, session.Strategy, session.State, r.Elapsed.Round(time.Millisecond))
	_, _ = fmt.Fprintf(out, "uploaded %d, unique %d, inserted %d, duplicates %d\n", r.Uploaded, r.Unique, r.Inserted, r.Duplicates)
	if r.SkippedKanwil+r.SkippedKancab+r.SkippedTargets > 0 {
		_, _ = fmt.Fprintf(out, "unresolved: kanwil %d, kancab %d, targets skipped %d\n", r.SkippedKanwil, r.SkippedKancab, r.SkippedTargets)
	}
	if r.FailedBatches > 0 {
		_, _ = fmt.Fprintf(out, "%d batch(es) failed, %d row(s) not inserted\n", r.FailedBatches, r.FailedRows)
	}
	for _, rowErr := range r.RowErrors {
		_, _ = fmt.Fprintf(out, " - %s\n", rowErr.Error())
	}
	for _, warning := range r.Warnings {
		_, _ = fmt.Fprintf(out, " ! %s\n", warning)
	}
}
