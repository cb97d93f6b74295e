package session

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

const humanizeRound = 100 * time.Millisecond

// RenderTable writes the human-readable session summary.
func (r *Report) RenderTable(wr io.Writer) {
	fmt.Fprintf(wr, "session %s (started %s, took %s)\n",
		r.SessionID,
		humanize.Time(r.StartedAt),
		r.FinishedAt.Sub(r.StartedAt).Round(humanizeRound),
	)
	fmt.Fprintf(wr, "launcher %s (%s, kernel %s)\n\n",
		r.Launcher.Hostname, r.Launcher.Platform, r.Launcher.KernelVersion)

	table := tablewriter.NewWriter(wr)
	table.SetAlignment(tablewriter.ALIGN_CENTER)
	table.SetHeader([]string{"Node", "State", "Note"})

	ambiguous := make(map[string]struct{}, len(r.Ambiguous))
	for _, node := range r.Ambiguous {
		ambiguous[node] = struct{}{}
	}

	nodes := make([]string, 0, len(r.Nodes))
	for node := range r.Nodes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		note := ""
		if _, ok := ambiguous[node]; ok {
			note = "ambiguous, needs manual follow-up"
		}
		table.Append([]string{node, string(r.Nodes[node]), note})
	}
	table.Render()

	fmt.Fprintf(wr, "\n%d nodes: %d healthy, %d unhealthy, %d quarantined, %d unknown\n",
		r.Counts.Total, r.Counts.Healthy, r.Counts.Unhealthy, r.Counts.Quarantined, r.Counts.Unknown)
	fmt.Fprintf(wr, "%d benchmark launches\n", r.OracleCalls)

	if len(r.Runs) > 0 {
		fmt.Fprintln(wr)
		runs := tablewriter.NewWriter(wr)
		runs.SetAlignment(tablewriter.ALIGN_CENTER)
		runs.SetHeader([]string{"Group", "Verdict", "AlgBW", "Duration", "Log"})
		for _, run := range r.Runs {
			bw := "-"
			if run.AlgBWGBps > 0 {
				bw = fmt.Sprintf("%.2f GB/s", run.AlgBWGBps)
			}
			runs.Append([]string{
				run.Group.String(),
				string(run.Verdict),
				bw,
				run.Duration().Round(humanizeRound).String(),
				run.OutputPath,
			})
		}
		runs.Render()
	}

	for _, st := range r.SelfTests {
		fmt.Fprintf(wr, "\nself-test %s: %s\n", st.Node, st.Verdict)
		for _, d := range st.Devices {
			line := fmt.Sprintf("  %s: %.2f Gb/s", d.Device, d.AvgGbps)
			if d.Reason != "" {
				line += " (" + d.Reason + ")"
			}
			fmt.Fprintln(wr, line)
		}
	}

	if len(r.LaunchWarnings) > 0 {
		fmt.Fprintf(wr, "\nwarnings:\n  %s\n", strings.Join(r.LaunchWarnings, "\n  "))
	}
}
