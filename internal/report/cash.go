// README: Cash reconciliation workbook (summary per agent plus every ledger entry).
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"vrent/internal/modules/cashflow"
)

const (
	summarySheet = "Summary"
	entriesSheet = "Entries"
	// numFmtMoney is excelize's built-in "#,##0.00".
	numFmtMoney = 4
)

var (
	summaryHeader = []any{"Agent", "From", "To", "Collected", "Handed over", "Outstanding", "On hand"}
	entriesHeader = []any{"Agent", "Date", "Kind", "Booking", "Amount", "Receipt no", "Received by"}
)

// WriteCashReconciliation renders reports as an .xlsx workbook. Amounts are
// converted from the smallest unit to major units.
func WriteCashReconciliation(w io.Writer, reports []cashflow.Report, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0EBF5"}},
	})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: numFmtMoney})
	if err != nil {
		return err
	}

	if err := writeHeader(f, summarySheet, summaryHeader, header); err != nil {
		return err
	}
	if err := writeHeader(f, entriesSheet, entriesHeader, header); err != nil {
		return err
	}

	row := 2
	var totalCollected, totalHanded, totalOutstanding int64
	for _, r := range reports {
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(summarySheet, cell, &[]any{
			string(r.AgentID),
			r.From.In(loc).Format("2006-01-02"),
			r.To.In(loc).Format("2006-01-02"),
			major(r.Collected),
			major(r.HandedOver),
			major(r.Outstanding),
			major(r.OnHand),
		}); err != nil {
			return err
		}
		totalCollected += r.Collected
		totalHanded += r.HandedOver
		totalOutstanding += r.Outstanding
		row++
	}
	if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", row), &[]any{
		"Total", "", "", major(totalCollected), major(totalHanded), major(totalOutstanding),
	}); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), header); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "D2", fmt.Sprintf("G%d", row), money); err != nil {
		return err
	}

	erow := 2
	for _, r := range reports {
		for _, e := range r.Entries {
			var bookingID, receivedBy string
			if e.BookingID != nil {
				bookingID = string(*e.BookingID)
			}
			if e.ReceivedBy != nil {
				receivedBy = string(*e.ReceivedBy)
			}
			if err := f.SetSheetRow(entriesSheet, fmt.Sprintf("A%d", erow), &[]any{
				string(e.AgentID),
				e.At.In(loc).Format("2006-01-02 15:04"),
				string(e.Kind),
				bookingID,
				major(e.Amount),
				e.ReceiptNo,
				receivedBy,
			}); err != nil {
				return err
			}
			erow++
		}
	}
	if erow > 2 {
		if err := f.SetCellStyle(entriesSheet, "E2", fmt.Sprintf("E%d", erow-1), money); err != nil {
			return err
		}
	}

	for _, sheet := range []string{summarySheet, entriesSheet} {
		if err := f.SetColWidth(sheet, "A", "G", 18); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func writeHeader(f *excelize.File, sheet string, cols []any, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &cols); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func major(minor int64) float64 {
	return float64(minor) / 100
}
