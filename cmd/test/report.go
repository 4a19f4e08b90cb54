package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/paiml/universal-bot/monitor"
)

type report struct {
	models         []string
	variants       []variant
	resultsByModel map[string]map[string]testResult
	totalRequests  int
	failedCount    int
}

// buildReport aggregates raw results by model and variant.
func buildReport(models []string, vs []variant, results []testResult) report {
	byModel := make(map[string]map[string]testResult, len(models))
	for _, m := range models {
		byModel[m] = make(map[string]testResult)
	}

	failed := 0
	for _, res := range results {
		entry, ok := byModel[res.Model]
		if !ok {
			entry = make(map[string]testResult)
			byModel[res.Model] = entry
		}
		entry[res.Variant] = res
		if !res.Success {
			failed++
		}
	}

	return report{
		models:         models,
		variants:       vs,
		resultsByModel: byModel,
		totalRequests:  len(results),
		failedCount:    failed,
	}
}

// renderReport prints the matrix, the client metrics and the failures.
func renderReport(w io.Writer, rep report, snap monitor.Snapshot) {
	if len(rep.models) == 0 {
		fmt.Fprintln(w, "no models to report")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Bedrock Regression Matrix ===")

	matrix := tablewriter.NewWriter(w)
	header := []string{"Variant"}
	header = append(header, rep.models...)
	matrix.SetHeader(header)
	matrix.SetAutoWrapText(false)
	for _, v := range rep.variants {
		row := []string{v.Header}
		for _, m := range rep.models {
			row = append(row, formatMatrixCell(rep.resultsByModel[m][v.Key]))
		}
		matrix.Append(row)
	}
	matrix.Render()

	summary := snap.Summary()
	stats := tablewriter.NewWriter(w)
	stats.SetHeader([]string{"Requests", "Passed", "Failed", "Retries", "Success rate", "Avg latency", "Tokens", "Cost"})
	stats.Append([]string{
		strconv.Itoa(rep.totalRequests),
		strconv.Itoa(rep.totalRequests - rep.failedCount),
		strconv.Itoa(rep.failedCount),
		strconv.FormatUint(snap.TotalRetries, 10),
		fmt.Sprintf("%.1f%%", summary.SuccessRate),
		fmt.Sprintf("%.0fms", summary.AverageLatencyMs),
		strconv.FormatUint(summary.TotalTokens, 10),
		fmt.Sprintf("$%.6f", summary.TotalCost),
	})
	stats.Render()

	if failures := gatherFailures(rep); len(failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failures:")
		for _, res := range failures {
			fmt.Fprintf(w, "- %s · %s → %s\n", res.Model, res.Label, shorten(res.ErrorReason, 200))
		}
	}
	fmt.Fprintln(w)
}

func formatMatrixCell(res testResult) string {
	if res.Model == "" {
		return "-"
	}
	duration := res.Duration.Truncate(10 * time.Millisecond)
	if res.Success {
		return fmt.Sprintf("PASS %.2fs", duration.Seconds())
	}
	return "FAIL " + shorten(res.ErrorCode, 32)
}

func gatherFailures(rep report) []testResult {
	var failures []testResult
	for _, m := range rep.models {
		for _, v := range rep.variants {
			res, ok := rep.resultsByModel[m][v.Key]
			if ok && res.Model != "" && !res.Success {
				failures = append(failures, res)
			}
		}
	}
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Model == failures[j].Model {
			return failures[i].Label < failures[j].Label
		}
		return failures[i].Model < failures[j].Model
	})
	return failures
}
