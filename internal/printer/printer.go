package printer

import "github.com/slok/restorewatch/internal/model"

// Printer knows how to print restore information in different formats.
type Printer interface {
	PrintList(ops []model.OperationSummary) error
	PrintHistory(events []model.ProgressEvent) error
	PrintView(view model.ClientView) error
	PrintClassification(filename string, size int64, c model.Classification) error
	PrintMessage(msg string) error
}
