package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alvarohm/upbot/internal/domain"
)

// Console implements ports.Notifier, printing one line per cycle and a
// full position table when enabled.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a notifier writing to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify prints the cycle summary in the configured mode.
func (c *Console) Notify(_ context.Context, state domain.MarketState, positions []domain.Position, realizedPnL float64) error {
	if c.table {
		c.printFull(state, positions, realizedPnL)
	} else {
		c.printCompact(state, positions, realizedPnL)
	}
	return nil
}

// printCompact puts the essentials on one line.
func (c *Console) printCompact(state domain.MarketState, positions []domain.Position, realizedPnL float64) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", now, describeRounds(state))
	fmt.Fprintf(&sb, " | pos:%d", len(positions))

	var unrealized float64
	for _, pos := range positions {
		unrealized += pos.UnrealizedPnL()
		fmt.Fprintf(&sb, " | %s %.0f@%.1fc now %.1fc", pos.Outcome, pos.Size, pos.AvgBuyPrice, pos.CurrentPrice)
	}
	fmt.Fprintf(&sb, " | pnl %+.1fc (open %+.1fc)", realizedPnL, unrealized)

	fmt.Fprintln(c.out, sb.String())
}

// printFull prints the position table plus the round clock.
func (c *Console) printFull(state domain.MarketState, positions []domain.Position, realizedPnL float64) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %s\n", now, describeRounds(state))

	if len(positions) == 0 {
		fmt.Fprintf(c.out, "  no open positions, realized %+.1fc\n\n", realizedPnL)
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Token", "Side", "Size", "Avg", "Now", "Open PnL")

	var unrealized float64
	for _, pos := range positions {
		open := pos.UnrealizedPnL()
		unrealized += open
		table.Append(
			truncate(pos.TokenID, 14),
			string(pos.Outcome),
			fmt.Sprintf("%.0f", pos.Size),
			fmt.Sprintf("%.1fc", pos.AvgBuyPrice),
			fmt.Sprintf("%.1fc", pos.CurrentPrice),
			fmt.Sprintf("%+.1fc", open),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  realized %+.1fc | open %+.1fc\n\n", realizedPnL, unrealized)
}

// describeRounds summarizes the round clock.
func describeRounds(state domain.MarketState) string {
	var parts []string
	if state.Current != nil {
		parts = append(parts, fmt.Sprintf("cur %s ends %s (Up %.0fc)",
			state.Current.Slug, state.TimeToEnd.Round(time.Second), state.Current.UpPrice))
	}
	if state.Next != nil {
		parts = append(parts, fmt.Sprintf("next %s starts %s (Up %.0fc)",
			state.Next.Slug, state.TimeToStart.Round(time.Second), state.Next.UpPrice))
	}
	if len(parts) == 0 {
		return "no open rounds"
	}
	return strings.Join(parts, " | ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
