package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/billflow/internal/engine"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Table is a minimal column-aligned table.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render lays the table out with each column as wide as its widest cell.
func (t Table) Render() string {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := range widths {
			if i < len(row) && lipgloss.Width(row[i]) > widths[i] {
				widths[i] = lipgloss.Width(row[i])
			}
		}
	}

	renderRow := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = TableCellStyle.Width(w + 2).Render(cell)
		}
		return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
	}

	lines := []string{renderRow(t.Headers, TableHeaderStyle)}
	for _, row := range t.Rows {
		lines = append(lines, renderRow(row, lipgloss.NewStyle()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func amountText(amount *decimal.Decimal) string {
	if amount == nil {
		return SubtleStyle.Render("unknown")
	}
	return amount.StringFixed(2)
}

func statusText(status model.BillStatus) string {
	if status == model.BillPaid {
		return SuccessStyle.Render(string(status))
	}
	return WarningStyle.Render(string(status))
}

// RenderBills writes bill instances with their allocations.
func RenderBills(w io.Writer, bills []model.BillInstance) error {
	if len(bills) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No bills found"))
		return err
	}

	table := Table{Headers: []string{"Period", "Vendor", "Amount", "Due", "Status", "Paid", "Split"}}
	for _, b := range bills {
		paid := ""
		if b.PaidDate != nil {
			paid = b.PaidDate.Format(dateLayout)
		}
		table.Rows = append(table.Rows, []string{
			b.BillingPeriod,
			b.Vendor,
			amountText(b.Amount),
			b.DueDate.Format(dateLayout),
			statusText(b.Status),
			paid,
			splitText(b.Allocations),
		})
	}

	_, err := fmt.Fprintln(w, table.Render())
	return err
}

func splitText(allocations []model.AllocatedPayment) string {
	if len(allocations) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(allocations))
	for _, a := range allocations {
		parts = append(parts, fmt.Sprintf("%s:%s", a.PartyID, a.Amount.StringFixed(2)))
	}
	return strings.Join(parts, " ")
}

// RenderObligations writes the recurring obligation catalog.
func RenderObligations(w io.Writer, obligations []model.RecurringObligation) error {
	if len(obligations) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("Catalog is empty, add obligations with `billflow catalog import`"))
		return err
	}

	table := Table{Headers: []string{"ID", "Vendor", "Category", "Amount", "Due day", "Patterns", "Active"}}
	for _, o := range obligations {
		amount := "variable"
		if fixed := o.AmountPolicy.FixedAmount(); fixed != nil {
			amount = fixed.StringFixed(2)
		}
		active := SuccessIcon
		if !o.Active {
			active = SubtleStyle.Render("no")
		}
		table.Rows = append(table.Rows, []string{
			fmt.Sprint(o.ID),
			o.Vendor,
			string(o.VendorCategory),
			amount,
			fmt.Sprint(o.DueDayOfMonth),
			strings.Join(o.MatchPatterns, ", "),
			active,
		})
	}

	_, err := fmt.Fprintln(w, table.Render())
	return err
}

// RenderParties writes responsible parties.
func RenderParties(w io.Writer, parties []model.Party) error {
	if len(parties) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No parties, bills are assigned to the household"))
		return err
	}

	table := Table{Headers: []string{"ID", "Name", "Active", "Added"}}
	for _, p := range parties {
		active := "yes"
		if !p.Active {
			active = "no"
		}
		table.Rows = append(table.Rows, []string{p.ID, p.Name, active, p.CreatedAt.Format(dateLayout)})
	}

	_, err := fmt.Fprintln(w, table.Render())
	return err
}

// RenderProcessed writes the processed message log.
func RenderProcessed(w io.Writer, records []model.ProcessedMessage) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No processed messages"))
		return err
	}

	table := Table{Headers: []string{"Processed", "Message", "Action", "Vendor", "Bill", "Error"}}
	for _, r := range records {
		table.Rows = append(table.Rows, []string{
			r.ProcessedAt.Format(time.DateTime),
			r.SourceMessageID,
			string(r.Action),
			r.MatchedVendor,
			r.BillInstanceID,
			ErrorStyle.Render(r.ClassifierError),
		})
	}

	_, err := fmt.Fprintln(w, table.Render())
	return err
}

// RenderSummary writes the boxed result of a reconcile run, followed by
// one line per failed message.
func RenderSummary(w io.Writer, summary *engine.BatchSummary, dryRun bool) error {
	actions := make([]string, 0, len(summary.Counts))
	for action := range summary.Counts {
		actions = append(actions, string(action))
	}
	sort.Strings(actions)

	var b strings.Builder
	fmt.Fprintf(&b, "Messages: %d\n", len(summary.Outcomes))
	for _, action := range actions {
		fmt.Fprintf(&b, "  • %s: %d\n", action, summary.Counts[model.Action(action)])
	}
	fmt.Fprintf(&b, "  • failed: %d\n", summary.Failed)
	fmt.Fprintf(&b, "Time taken: %s", summary.Duration.Round(time.Millisecond))

	title := "Reconcile Complete"
	if dryRun {
		title += " (dry run, nothing saved)"
	}
	if _, err := fmt.Fprintln(w, RenderBox(title, b.String())); err != nil {
		return err
	}

	for _, out := range summary.Outcomes {
		if !out.Failed() {
			continue
		}
		if _, err := fmt.Fprintln(w, FormatError(fmt.Sprintf("%s: %v", out.MessageID, out.Err))); err != nil {
			return err
		}
	}
	return nil
}
