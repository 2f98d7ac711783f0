package health

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"
)

// PrintReport writes a check table and a summary line to w
func PrintReport(w io.Writer, report *Report, color bool) {
	au := aurora.NewAurora(color)

	t := tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 4, ' ', 0))
	if report.Version.Major > 0 {
		t.AddLine("Hub version", report.Version.String())
		t.AddLine()
	}
	t.AddHeader("CHECK", "STATUS", "DETAILS")
	for _, res := range report.Results {
		var status aurora.Value
		switch {
		case res.Skipped:
			status = au.Yellow("Skipped")
		case res.Healthy:
			status = au.Green("Healthy")
		default:
			status = au.Red("Unhealthy")
		}
		t.AddLine(res.Type, status, res.Message)
		for _, p := range res.Problems {
			t.AddLine("", "", p)
		}
	}
	t.Print()

	fmt.Fprintln(w)
	switch {
	case report.Healthy():
		fmt.Fprintln(w, au.Green("Cluster appears healthy"))
	case report.Aborted:
		fmt.Fprintln(w, au.Red("Cluster failed a check, remaining checks not run (use --force to continue)"))
	default:
		fmt.Fprintln(w, au.Red(fmt.Sprintf("Cluster failed %d check(s)", report.Failed())))
	}
}
