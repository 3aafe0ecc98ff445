package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/erp/stockledger/internal/application/operations"
	"github.com/erp/stockledger/internal/bootstrap"
	"github.com/spf13/cobra"
)

const maxEnvelopeBytes = 4 << 20

// RunOptions holds flags for the run command
type RunOptions struct {
	*RootOptions
	KeepGoing bool
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Post business documents from a JSON lines file",
		Long: `Post business documents read one per line from file, or stdin when file is
omitted or "-". Each line is an envelope naming the route and the document:

  {"object":"SALE","action":"POST","payload":{"doc_id":"so-1", ...}}

Documents already applied are reported as replayed and leave the ledgers
unchanged, so a file can be run again after a partial failure. Blank lines
and lines starting with # are skipped.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runDocuments(cmd, opts, path)
		},
	}

	cmd.Flags().BoolVar(&opts.KeepGoing, "keep-going", false, "continue after a rejected document")

	return cmd
}

// DocumentOutcome reports one input line
type DocumentOutcome struct {
	Line   int                `json:"line"`
	Route  string             `json:"route,omitempty"`
	DocID  string             `json:"doc_id,omitempty"`
	Status string             `json:"status"` // posted, replayed, rejected
	Code   string             `json:"code,omitempty"`
	Error  string             `json:"error,omitempty"`
	Result *operations.Result `json:"result,omitempty"`
}

// RunReport summarizes a run
type RunReport struct {
	Documents []DocumentOutcome `json:"documents"`
	Posted    int               `json:"posted"`
	Replayed  int               `json:"replayed"`
	Rejected  int               `json:"rejected"`
}

func runDocuments(cmd *cobra.Command, opts *RunOptions, path string) error {
	in, closeIn, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer closeIn()

	out := opts.formatter(cmd)
	var report *RunReport
	err = opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
		var rerr error
		report, rerr = dispatchLines(ctx, rt.Dispatcher, in, opts.KeepGoing, out)
		return rerr
	})
	if err != nil {
		return err
	}

	if err := out.Success(report, report.writeText); err != nil {
		return err
	}
	if report.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d document(s) rejected", report.Rejected))
	}
	return nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open input", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func dispatchLines(ctx context.Context, d *operations.Dispatcher, in io.Reader, keepGoing bool, out *OutputFormatter) (*RunReport, error) {
	report := &RunReport{Documents: []DocumentOutcome{}}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxEnvelopeBytes)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		outcome := dispatchLine(ctx, d, line, []byte(text))
		out.VerboseLog("line %d: %s %s %s", line, outcome.Route, outcome.DocID, outcome.Status)
		report.add(outcome)
		if outcome.Status == "rejected" && !keepGoing {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to read input after line %d", line), err)
	}
	return report, nil
}

func dispatchLine(ctx context.Context, d *operations.Dispatcher, line int, raw []byte) DocumentOutcome {
	outcome := DocumentOutcome{Line: line}
	reject := func(err error) DocumentOutcome {
		outcome.Status = "rejected"
		outcome.Code = ErrorCode(err)
		outcome.Error = err.Error()
		return outcome
	}

	var env operations.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return reject(fmt.Errorf("malformed envelope: %w", err))
	}
	outcome.Route = env.Route().String()

	cmd, err := env.Decode()
	if err != nil {
		return reject(err)
	}
	outcome.DocID = operations.DocumentID(cmd)
	res, err := d.Dispatch(ctx, cmd)
	if err != nil {
		return reject(err)
	}
	outcome.Result = res
	outcome.Status = "posted"
	if res.Replayed() {
		outcome.Status = "replayed"
	}
	return outcome
}

func (r *RunReport) add(o DocumentOutcome) {
	r.Documents = append(r.Documents, o)
	switch o.Status {
	case "posted":
		r.Posted++
	case "replayed":
		r.Replayed++
	default:
		r.Rejected++
	}
}

func (r *RunReport) writeText(w io.Writer) {
	fmt.Fprintln(w, "LINE\tROUTE\tDOCUMENT\tSTATUS\tDETAIL")
	for _, d := range r.Documents {
		detail := ""
		if d.Error != "" {
			detail = d.Code + ": " + d.Error
		} else if d.Result != nil && d.Result.Posting != nil {
			detail = fmt.Sprintf("%d ledger line(s)", len(d.Result.Posting.Entries))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.Line, d.Route, d.DocID, d.Status, detail)
	}
	fmt.Fprintf(w, "\nposted %d, replayed %d, rejected %d\n", r.Posted, r.Replayed, r.Rejected)
}
