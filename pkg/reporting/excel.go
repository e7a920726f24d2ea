package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/tradeforge/position-engine/internal/position"
	"github.com/tradeforge/position-engine/internal/risk"
)

// ExcelStyles holds the style IDs shared across sheets
type ExcelStyles struct {
	HeaderStyle       int
	CurrencyStyle     int
	PercentStyle      int
	RedPercentStyle   int
	GreenPercentStyle int
	BaseStyle         int
}

// ExcelReporter exports the trade history as a styled workbook
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// WriteTradeHistory writes closed trades and a summary sheet to path,
// creating parent directories as needed
func (r *ExcelReporter) WriteTradeHistory(records []position.TradeRecord, status risk.Status, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const summarySheet = "Summary"

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	fx.NewSheet(summarySheet)

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeTradesSheet(fx, tradesSheet, records, styles); err != nil {
		return err
	}
	if err := r.writeSummarySheet(fx, summarySheet, records, status, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 10,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.RedPercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 10,
		Font: &excelize.Font{
			Color: "FF0000",
		},
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.GreenPercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 10,
		Font: &excelize.Font{
			Color: "008000",
		},
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeTradesSheet(fx *excelize.File, sheet string, records []position.TradeRecord, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 18) // Closed At
	fx.SetColWidth(sheet, "B", "B", 12) // Symbol
	fx.SetColWidth(sheet, "C", "C", 16) // Reason
	fx.SetColWidth(sheet, "D", "E", 12) // Entry / Exit
	fx.SetColWidth(sheet, "F", "F", 14) // Quantity
	fx.SetColWidth(sheet, "G", "H", 12) // PnL / PnL %
	fx.SetColWidth(sheet, "I", "I", 10) // Fee
	fx.SetColWidth(sheet, "J", "J", 12) // Held
	fx.SetColWidth(sheet, "K", "K", 10) // Final

	headers := []string{
		"Closed At", "Symbol", "Reason", "Entry Price", "Exit Price",
		"Quantity", "PnL", "PnL %", "Fee", "Held", "Final Exit",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}

	for i, rec := range records {
		row := i + 2

		pnlStyle := styles.GreenPercentStyle
		if rec.PnL < 0 {
			pnlStyle = styles.RedPercentStyle
		}

		values := []interface{}{
			rec.ClosedAt.Format("2006-01-02 15:04:05"),
			rec.Symbol,
			string(rec.Reason),
			rec.EntryPrice,
			rec.ExitPrice,
			rec.Quantity,
			rec.PnL,
			rec.PnLRate,
			rec.Fee,
			formatDuration(rec.HoldDuration),
			rec.FinalExit,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
			switch col {
			case 3, 4, 6, 8:
				fx.SetCellStyle(sheet, cell, cell, styles.CurrencyStyle)
			case 7:
				fx.SetCellStyle(sheet, cell, cell, pnlStyle)
			default:
				fx.SetCellStyle(sheet, cell, cell, styles.BaseStyle)
			}
		}
	}
	return nil
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, records []position.TradeRecord, status risk.Status, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 24)
	fx.SetColWidth(sheet, "B", "B", 18)

	for i, h := range []string{"Metric", "Value"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}

	var totalPnL, totalFees, bestTrade, worstTrade float64
	var wins int
	exitCounts := make(map[position.ExitReason]int)
	for i, rec := range records {
		totalPnL += rec.PnL
		totalFees += rec.Fee
		if rec.PnL > 0 {
			wins++
		}
		if i == 0 || rec.PnL > bestTrade {
			bestTrade = rec.PnL
		}
		if i == 0 || rec.PnL < worstTrade {
			worstTrade = rec.PnL
		}
		exitCounts[rec.Reason]++
	}

	winRate := 0.0
	if len(records) > 0 {
		winRate = float64(wins) / float64(len(records))
	}

	rows := []struct {
		label string
		value interface{}
		style int
	}{
		{"Total Trades", len(records), styles.BaseStyle},
		{"Winning Trades", wins, styles.BaseStyle},
		{"Win Rate", winRate, styles.PercentStyle},
		{"Total PnL", totalPnL, styles.CurrencyStyle},
		{"Total Fees", totalFees, styles.CurrencyStyle},
		{"Best Trade", bestTrade, styles.CurrencyStyle},
		{"Worst Trade", worstTrade, styles.CurrencyStyle},
		{"Avg Win/Loss Ratio", status.AvgWinLossRatio, styles.BaseStyle},
		{"Consecutive Losses", status.ConsecutiveLosses, styles.BaseStyle},
		{"Daily PnL", status.DailyPnL, styles.CurrencyStyle},
	}
	row := 2
	for _, item := range rows {
		labelCell, _ := excelize.CoordinatesToCellName(1, row)
		valueCell, _ := excelize.CoordinatesToCellName(2, row)
		fx.SetCellValue(sheet, labelCell, item.label)
		fx.SetCellStyle(sheet, labelCell, labelCell, styles.BaseStyle)
		fx.SetCellValue(sheet, valueCell, item.value)
		fx.SetCellStyle(sheet, valueCell, valueCell, item.style)
		row++
	}

	// Exit reason breakdown below the aggregates
	row++
	for i, h := range []string{"Exit Reason", "Count"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}
	row++
	for _, reason := range []position.ExitReason{
		position.ExitStopLoss, position.ExitTrailingStop,
		position.ExitTakeProfit, position.ExitPartialTier, position.ExitManual,
	} {
		count, ok := exitCounts[reason]
		if !ok {
			continue
		}
		labelCell, _ := excelize.CoordinatesToCellName(1, row)
		valueCell, _ := excelize.CoordinatesToCellName(2, row)
		fx.SetCellValue(sheet, labelCell, string(reason))
		fx.SetCellStyle(sheet, labelCell, labelCell, styles.BaseStyle)
		fx.SetCellValue(sheet, valueCell, count)
		fx.SetCellStyle(sheet, valueCell, valueCell, styles.BaseStyle)
		row++
	}
	return nil
}
