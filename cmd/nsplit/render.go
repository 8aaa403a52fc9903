package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/aggregate"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"github.com/shopspring/decimal"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		})
}

func formatDecimal(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatOptionalDecimal(d optional.Option[decimal.Decimal]) string {
	if d.IsNone() {
		return "-"
	}

	return formatDecimal(d.Unwrap())
}

func formatOptionalTime(t optional.Option[time.Time]) string {
	if t.IsNone() {
		return "-"
	}

	return formatTime(t.Unwrap())
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func renderSessions(w io.Writer, summaries []aggregate.SessionSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No sessions."))

		return
	}

	t := newTable("ID", "Symbol", "Status", "Stage", "Invested", "Realized", "Unrealized", "Return %", "Created")
	for _, s := range summaries {
		t.Row(
			s.ID,
			fmt.Sprintf("%s (%s)", s.SymbolName, s.SymbolCode),
			string(s.Status),
			fmt.Sprintf("%d/%d", s.CurrentStage, s.TotalStages),
			formatDecimal(s.Invested),
			formatDecimal(s.Realized),
			formatDecimal(s.Unrealized),
			formatDecimal(s.ReturnPct),
			formatTime(s.CreatedAt),
		)
	}

	fmt.Fprintln(w, t.Render())
}

func renderSession(w io.Writer, s *types.Session) {
	summary := aggregate.Summarize(s)

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s (%s) %s", s.Config.SymbolName, s.Config.SymbolCode, s.Status)))
	fmt.Fprintf(w, "ID:          %s\n", s.ID)
	fmt.Fprintf(w, "Anchor:      %s\n", formatOptionalDecimal(s.AnchorPrice))
	fmt.Fprintf(w, "Last price:  %s (%s)\n", formatOptionalDecimal(s.LastPrice), formatOptionalTime(s.LastPriceAt))
	fmt.Fprintf(w, "Invested:    %s\n", formatDecimal(summary.Invested))
	fmt.Fprintf(w, "Realized:    %s\n", formatDecimal(summary.Realized))
	fmt.Fprintf(w, "Unrealized:  %s\n", formatDecimal(summary.Unrealized))
	fmt.Fprintf(w, "Return:      %s%%\n", formatDecimal(summary.ReturnPct))

	if s.FeedDown {
		fmt.Fprintln(w, mutedStyle.Render("Price feed unavailable"))
	}

	t := newTable("Stage", "Status", "Allocation", "Expected", "Bought", "Qty", "Target", "Sold", "Profit")
	for _, stage := range s.Stages {
		row := []string{
			strconv.Itoa(stage.Number),
			string(stage.Status),
			formatDecimal(stage.AllocationAmount),
			formatOptionalDecimal(stage.ExpectedPrice),
			"-", "-", "-", "-", "-",
		}

		if pos := s.Position(stage.Number); pos != nil {
			row[4] = formatDecimal(pos.BuyPrice)
			row[5] = pos.Quantity.String()
			row[6] = formatDecimal(pos.SellTargetPrice)
			row[7] = formatOptionalDecimal(pos.SellPrice)
			row[8] = formatDecimal(pos.Realized())
		}

		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())

	if order := s.ActiveOrder; order != nil {
		fmt.Fprintf(w, "TWAP %s stage %d: %d/%d slices filled, deadline %s\n",
			order.Side, order.StageNumber, filledSlices(order), len(order.Slices), formatTime(order.Deadline))
	}
}

func filledSlices(order *types.TwapOrder) int {
	n := 0
	for _, slice := range order.Slices {
		if slice.Status == types.SliceStatusFilled {
			n++
		}
	}

	return n
}

func renderEvents(w io.Writer, events []types.Event) {
	t := newTable("#", "Time", "Kind", "Stage", "Price", "Qty", "Message")
	for _, e := range events {
		stage := "-"
		if e.StageNumber > 0 {
			stage = strconv.Itoa(e.StageNumber)
		}

		t.Row(
			strconv.FormatInt(e.Sequence, 10),
			formatTime(e.CreatedAt),
			string(e.Kind),
			stage,
			formatOptionalDecimal(e.Price),
			formatOptionalDecimal(e.Quantity),
			e.Message,
		)
	}

	fmt.Fprintln(w, t.Render())
}

func renderProviders(w io.Writer) error {
	t := newTable("Provider", "Name", "Auth", "Description")
	for _, name := range pricefeed.GetSupportedProviders() {
		info, err := pricefeed.GetProviderInfo(name)
		if err != nil {
			return err
		}

		t.Row(info.Name, info.DisplayName, strconv.FormatBool(info.RequiresAuth), info.Description)
	}

	fmt.Fprintln(w, t.Render())

	return nil
}
