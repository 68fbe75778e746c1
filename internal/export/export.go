// Package export produces XLSX workbooks from receipt collections. It carries
// its own row type so callers map their records in; the package depends only
// on excelize.
package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Expenses"

// Filename is the download name for exported workbooks.
const Filename = "expense-report.xlsx"

// Item is one line item on an exported row.
type Item struct {
	Description string
	Price       float64
}

// Row is one receipt flattened for the spreadsheet.
type Row struct {
	Date             string
	CustomerDocument string
	Merchant         string
	Category         string
	Total            float64
	Currency         string
	Status           string
	Items            []Item
}

// Column order and presence are fixed.
var headers = []string{
	"Date",
	"Customer Document",
	"Merchant",
	"Category",
	"Total",
	"Currency",
	"Status",
	"Items",
}

var columnWidths = []float64{12, 17, 22, 14, 10, 9, 14, 50}

// Workbook renders one spreadsheet row per input row, in the order given, and
// returns the encoded XLSX bytes.
func Workbook(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}
	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("setting column width: %w", err)
		}
	}

	for rowIdx, r := range rows {
		document := r.CustomerDocument
		if document == "" {
			document = "N/A"
		}
		values := []any{
			r.Date,
			document,
			r.Merchant,
			r.Category,
			r.Total,
			r.Currency,
			r.Status,
			flattenItems(r.Items),
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", rowIdx+2, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// flattenItems joins line items into one cell: "desc ($price), ...".
func flattenItems(items []Item) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s ($%.2f)", item.Description, item.Price)
	}
	return strings.Join(parts, ", ")
}
