package salesquery

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"ventaslink/backend/internal/domain"
)

// SaleRow is the flattened table/export projection of a sale. The field
// order of ExportHeaders is a fixed compatibility contract.
type SaleRow struct {
	ID            string  `json:"id"`
	CustomerName  string  `json:"customerName"`
	CustomerEmail string  `json:"customerEmail"`
	ProductName   string  `json:"productName"`
	VendorName    string  `json:"vendorName"`
	SaleDateISO   string  `json:"saleDateISO"`
	PaymentMethod string  `json:"paymentMethod"`
	AmountUSD     float64 `json:"amountUsd"`
	Status        string  `json:"status"`
}

var ExportHeaders = []string{
	"customerName",
	"customerEmail",
	"productName",
	"vendorName",
	"saleDateISO",
	"paymentMethod",
	"amountUsd",
	"status",
}

func SaleToRow(sale domain.Sale) SaleRow {
	return SaleRow{
		ID:            sale.ID,
		CustomerName:  sale.CustomerName,
		CustomerEmail: sale.CustomerEmail,
		ProductName:   sale.ProductName,
		VendorName:    sale.VendorName,
		SaleDateISO:   domain.DateISO(sale.Date),
		PaymentMethod: sale.PaymentMethod,
		AmountUSD:     sale.USDAmount,
		Status:        sale.Status,
	}
}

// FetchAllSalesForExport pages through the filtered result set and
// returns flattened rows, capped at maxRows (defaulting to 10000).
// Unlike listing pages, export errors propagate: a partial CSV is worse
// than a failed download.
func (e *Engine) FetchAllSalesForExport(ctx context.Context, f Filters, maxRows int) ([]SaleRow, error) {
	if maxRows <= 0 {
		maxRows = exportMaxRows
	}

	rows := make([]SaleRow, 0, exportPageSize)
	cursor := ""
	for len(rows) < maxRows {
		pageSize := exportPageSize
		if remaining := maxRows - len(rows); remaining < pageSize {
			pageSize = remaining
		}

		page, err := e.FetchSalesPage(ctx, f, PageRequest{
			PageSize: pageSize,
			Cursor:   cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("export fetch: %w", err)
		}

		for _, sale := range page.Sales {
			rows = append(rows, SaleToRow(sale))
		}

		// A filtered page can be empty while raw pages remain, so only a
		// short raw page or a stuck cursor ends the scan.
		if !page.HasNextPage || page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}
	return rows, nil
}

// WriteCSV writes rows in the fixed export column order, header first.
func WriteCSV(w io.Writer, rows []SaleRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.CustomerName,
			row.CustomerEmail,
			row.ProductName,
			row.VendorName,
			row.SaleDateISO,
			row.PaymentMethod,
			strconv.FormatFloat(row.AmountUSD, 'f', -1, 64),
			row.Status,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
