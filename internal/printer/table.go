package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/progress"
)

// TablePrinter prints restore information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints operations in a table format.
func (t *TablePrinter) PrintList(ops []model.OperationSummary) error {
	if len(ops) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tFILE\tKIND\tSTATUS\tSTAGE\tPROGRESS\tSTARTED")
	for _, s := range ops {
		stage, prog := "-", "-"
		if s.Last != nil {
			stage = string(s.Last.Stage)
			prog = fmt.Sprintf("%d%%", s.Last.Progress)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Operation.ID,
			s.Operation.Filename,
			s.Operation.Kind,
			s.Status(),
			stage,
			prog,
			TimeAgo(s.Operation.StartedAt),
		)
	}

	return nil
}

// PrintHistory prints the event log of an operation.
func (t *TablePrinter) PrintHistory(events []model.ProgressEvent) error {
	if len(events) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "SEQ\tTIME\tSTAGE\tPROGRESS\tMESSAGE\tERROR")
	for _, e := range events {
		errText := e.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\t%s\t%s\n",
			e.Sequence,
			FormatTimestamp(e.Timestamp),
			e.Stage,
			e.Progress,
			e.Message,
			errText,
		)
	}

	return nil
}

// PrintView prints the final state of an operation.
func (t *TablePrinter) PrintView(v model.ClientView) error {
	status := "running"
	switch {
	case v.Failed:
		status = "failed"
	case v.Terminal:
		status = "completed"
	}

	fmt.Fprintf(t.writer, "Operation:  %s\n", v.OperationID)
	fmt.Fprintf(t.writer, "Status:     %s\n", status)
	fmt.Fprintf(t.writer, "Stage:      %s\n", v.CurrentStage)
	fmt.Fprintf(t.writer, "Progress:   %d%%\n", v.Progress)
	if v.Message != "" {
		fmt.Fprintf(t.writer, "Message:    %s\n", v.Message)
	}
	if v.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", v.Error)
	}
	fmt.Fprintf(t.writer, "Elapsed:    %s\n", progress.FormatDuration(v.Elapsed))
	if !v.Terminal {
		fmt.Fprintf(t.writer, "Remaining:  %s\n", FormatETA(v.Remaining))
	}
	if len(v.Details) > 0 {
		fmt.Fprintf(t.writer, "Details:    %s\n", FormatDetails(v.Details))
	}

	return nil
}

// PrintClassification prints the inspection result of an artifact.
func (t *TablePrinter) PrintClassification(filename string, size int64, c model.Classification) error {
	encrypted := "no"
	if c.Encrypted {
		encrypted = "yes"
	}

	fmt.Fprintf(t.writer, "File:       %s\n", filename)
	fmt.Fprintf(t.writer, "Size:       %s\n", FormatBytes(size))
	fmt.Fprintf(t.writer, "Kind:       %s\n", c.Kind)
	fmt.Fprintf(t.writer, "Encrypted:  %s\n", encrypted)

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
