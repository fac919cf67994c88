package app

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"lp-hedge-bot/internal/rebalance"
)

// writeSummary renders the cycle's decisions as a console table so an
// operator can check manual-mode advisories at a glance.
func writeSummary(out io.Writer, decisions []rebalance.Decision) {
	if len(decisions) == 0 {
		fmt.Fprintln(out, "no instruments with open exposure")
		return
	}
	table := tablewriter.NewWriter(out)
	table.Header("Instrument", "LP Qty", "Hedged Qty", "Diff", "Diff %", "Action", "Value", "Mode", "Fired")
	for _, d := range decisions {
		mode := "manual"
		if d.AutoMode {
			mode = "auto"
		}
		fired := ""
		if d.TriggerFired {
			fired = "YES"
		}
		table.Append(
			d.Instrument,
			fmt.Sprintf("%.6f", d.LPQty),
			fmt.Sprintf("%.6f", d.HedgedQty),
			fmt.Sprintf("%.6f", d.Difference),
			fmt.Sprintf("%.2f%%", d.PctDifference),
			string(d.Action),
			fmt.Sprintf("%.6f", d.Value),
			mode,
			fired,
		)
	}
	table.Render()
}
