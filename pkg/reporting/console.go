package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tradeforge/position-engine/internal/position"
	"github.com/tradeforge/position-engine/internal/risk"
)

// ConsoleReporter renders engine state as terminal tables
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to stdout
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// PrintStartupBanner prints the engine identity and environment at startup
func (r *ConsoleReporter) PrintStartupBanner(instance, environment, preset string, watchlist []string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("POSITION ENGINE")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🏷️ Instance", instance},
		{"🔧 Environment", environment},
		{"🎛️ Preset", preset},
		{"📊 Watchlist", fmt.Sprintf("%d symbols", len(watchlist))},
	})
	for _, symbol := range watchlist {
		t.AppendRow(table.Row{"", symbol})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, WidthMax: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 35, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintPositions prints the open positions with live unrealized figures.
// Symbols missing from prices render without unrealized columns.
func (r *ConsoleReporter) PrintPositions(positions []position.Position, prices map[string]float64) {
	if len(positions) == 0 {
		fmt.Fprintln(r.out, "📭 No open positions")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("OPEN POSITIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Entry", "Qty", "Current", "Unrealized", "Peak", "Fills", "Held"})

	for _, p := range positions {
		unrealized := "-"
		peak := "-"
		current := "-"
		if price, ok := prices[p.Symbol]; ok && price > 0 {
			current = fmt.Sprintf("%.4f", price)
			unrealized = colorRate(p.UnrealizedRate(price))
			peak = fmt.Sprintf("%.2f%%", p.PeakRate()*100)
		}
		t.AppendRow(table.Row{
			p.Symbol,
			fmt.Sprintf("%.4f", p.EntryPrice),
			fmt.Sprintf("%.6f", p.Quantity),
			current,
			unrealized,
			peak,
			len(p.AveragingFills),
			formatDuration(time.Since(p.EntryTime)),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintRiskStatus prints the governor snapshot alongside the current balance
func (r *ConsoleReporter) PrintRiskStatus(status risk.Status, balance float64) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("RISK STATUS")
	t.SetStyle(table.StyleRounded)

	halt := "none"
	if status.HaltReason != risk.HaltNone {
		halt = "🛑 " + string(status.HaltReason)
	}

	t.AppendRows([]table.Row{
		{"💰 Balance", fmt.Sprintf("$%.2f", balance)},
		{"📅 Daily PnL", fmt.Sprintf("$%.2f (%d trades)", status.DailyPnL, status.DailyTrades)},
		{"📉 Loss Streak", fmt.Sprintf("%d", status.ConsecutiveLosses)},
		{"🎯 Win Rate", fmt.Sprintf("%.1f%% (%d/%d)", status.WinRate*100, status.WinningTrades, status.TotalTrades)},
		{"⚖️ Win/Loss Ratio", fmt.Sprintf("%.2f", status.AvgWinLossRatio)},
		{"🚦 Entry Halt", halt},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 28, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintTradeSummary prints the closed trade history with aggregate statistics
func (r *ConsoleReporter) PrintTradeSummary(records []position.TradeRecord) {
	if len(records) == 0 {
		fmt.Fprintln(r.out, "📭 No closed trades yet")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("TRADE HISTORY")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Closed", "Symbol", "Reason", "Entry", "Exit", "PnL", "PnL %", "Held"})

	var wins, losses int
	var sumWins, sumLosses, totalPnL float64
	for _, rec := range records {
		totalPnL += rec.PnL
		if rec.PnL > 0 {
			wins++
			sumWins += rec.PnL
		} else {
			losses++
			sumLosses += -rec.PnL
		}
		t.AppendRow(table.Row{
			rec.ClosedAt.Format("01-02 15:04"),
			rec.Symbol,
			string(rec.Reason),
			fmt.Sprintf("%.4f", rec.EntryPrice),
			fmt.Sprintf("%.4f", rec.ExitPrice),
			fmt.Sprintf("%.2f", rec.PnL),
			colorRate(rec.PnLRate),
			formatDuration(rec.HoldDuration),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "Total", fmt.Sprintf("%.2f", totalPnL), "", ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()

	winRate := float64(wins) / float64(len(records)) * 100
	fmt.Fprintf(r.out, "📊 %d trades | %.1f%% wins", len(records), winRate)
	if wins > 0 && losses > 0 && sumLosses > 0 {
		ratio := (sumWins / float64(wins)) / (sumLosses / float64(losses))
		fmt.Fprintf(r.out, " | %.2f win/loss ratio", ratio)
	}
	fmt.Fprintln(r.out)
}

// colorRate formats a rate as a signed percentage, green for gains and red
// for losses
func colorRate(rate float64) string {
	formatted := fmt.Sprintf("%+.2f%%", rate*100)
	if rate > 0 {
		return text.FgGreen.Sprint(formatted)
	}
	if rate < 0 {
		return text.FgRed.Sprint(formatted)
	}
	return formatted
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d >= 24*time.Hour {
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%.0fm", d.Minutes())
}
