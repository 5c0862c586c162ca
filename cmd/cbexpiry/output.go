package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/ahrav/cbexpiry/internal/app/provisioning"
	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/internal/domain/history"
)

func printReport(w io.Writer, report domain.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BUCKET\tSTATUS\tPROCESSED\tFAILED\tPAGES\tSECONDS\tERROR")
	for _, s := range report.Summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.2f\t%s\n",
			s.Bucket, s.Status(), s.Processed, s.Failed, s.Pages, s.Elapsed.Seconds(), errText(s.Err))
	}
	_ = tw.Flush()

	t := report.Totals()
	fmt.Fprintf(w, "Run %s: %d bucket(s), %d updated, %d failed, %d page(s) in %.2f seconds\n",
		report.RunID, t.Buckets, t.Processed, t.Failed, t.Pages, t.Elapsed.Seconds())
	if t.SinkErrors > 0 {
		fmt.Fprintf(w, "%d detail record(s) could not be written\n", t.SinkErrors)
	}
}

func printProvisionResults(w io.Writer, results []provisioning.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BUCKET\tVIEW\tOUTCOME\tSECONDS\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", r.Bucket, r.View, r.Outcome, r.Elapsed.Seconds(), errText(r.Err))
	}
	_ = tw.Flush()
}

func printHistory(w io.Writer, runs []history.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tBUCKET\tVIEW\tTTL\tLIMIT\tSTATUS\tPROCESSED\tFAILED\tSECONDS")
	for _, r := range runs {
		limit := "all"
		if r.DocumentLimit != nil {
			limit = strconv.Itoa(*r.DocumentLimit)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%.2f\n",
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.RunID, r.Bucket, r.View,
			domain.TTL(r.TTLSeconds), limit, r.Status,
			r.Processed, r.Failed, r.Elapsed.Seconds(),
		)
	}
	_ = tw.Flush()
}

func errText(err error) string {
	if err == nil {
		return "-"
	}
	return err.Error()
}
