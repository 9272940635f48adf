//go:build ignore

// Package main compares two `go test -bench` output files and flags
// performance regressions.
// Usage: go run scripts/bench-compare.go [options] <current.txt> <baseline.txt>
//
// Time regressions beyond the threshold fail the run. Allocation count
// regressions are reported but only fail with -strict-allocs.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
)

var (
	threshold    = flag.Float64("threshold", 0.20, "Fractional slowdown that counts as a regression")
	strictAllocs = flag.Bool("strict-allocs", false, "Fail on allocs/op regressions too")
	showAll      = flag.Bool("all", false, "Show every benchmark, not just changed ones")
	asJSON       = flag.Bool("json", false, "Emit the report as JSON")
	noFail       = flag.Bool("no-fail", false, "Exit 0 even when regressions are found")
)

// improvementCutoff marks speedups worth calling out.
const improvementCutoff = 0.10

// benchLine matches "BenchmarkName-8  1000  1234 ns/op  456 B/op  7 allocs/op".
// The B/op and allocs/op columns only appear with -benchmem.
var benchLine = regexp.MustCompile(`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+(\d+)\s+B/op)?(?:\s+(\d+)\s+allocs/op)?`)

// measurement is one parsed benchmark result.
type measurement struct {
	NsPerOp     float64 `json:"ns_per_op"`
	BytesPerOp  int     `json:"bytes_per_op"`
	AllocsPerOp int     `json:"allocs_per_op"`
}

// delta is the comparison of one benchmark across the two files.
type delta struct {
	Name      string  `json:"name"`
	Current   float64 `json:"current_ns_per_op"`
	Baseline  float64 `json:"baseline_ns_per_op"`
	TimePct   float64 `json:"time_delta_percent"`
	AllocsPct float64 `json:"allocs_delta_percent"`
	Verdict   string  `json:"verdict"`
}

type report struct {
	Compared     int      `json:"compared"`
	Regressions  int      `json:"regressions"`
	Improvements int      `json:"improvements"`
	OnlyCurrent  []string `json:"only_in_current,omitempty"`
	OnlyBaseline []string `json:"only_in_baseline,omitempty"`
	Deltas       []delta  `json:"deltas"`
	Failed       bool     `json:"failed"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current.txt> <baseline.txt>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := parseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	baseline, err := parseFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	rep := buildReport(current, baseline)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
			os.Exit(1)
		}
	} else {
		printReport(rep)
	}

	if rep.Failed && !*noFail {
		os.Exit(1)
	}
}

func parseFile(path string) (map[string]measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]measurement)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := benchLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		ns, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		meas := measurement{NsPerOp: ns}
		if m[4] != "" {
			meas.BytesPerOp, _ = strconv.Atoi(m[4])
		}
		if m[5] != "" {
			meas.AllocsPerOp, _ = strconv.Atoi(m[5])
		}
		// Later duplicates win, matching -count=N output where the
		// final run is the warmed one.
		out[m[1]] = meas
	}
	return out, scanner.Err()
}

func buildReport(current, baseline map[string]measurement) *report {
	rep := &report{}

	names := make([]string, 0, len(current))
	for name := range current {
		if _, ok := baseline[name]; ok {
			names = append(names, name)
		} else {
			rep.OnlyCurrent = append(rep.OnlyCurrent, name)
		}
	}
	for name := range baseline {
		if _, ok := current[name]; !ok {
			rep.OnlyBaseline = append(rep.OnlyBaseline, name)
		}
	}
	sort.Strings(names)
	sort.Strings(rep.OnlyCurrent)
	sort.Strings(rep.OnlyBaseline)

	for _, name := range names {
		curr, base := current[name], baseline[name]
		rep.Compared++

		d := delta{
			Name:     name,
			Current:  curr.NsPerOp,
			Baseline: base.NsPerOp,
		}
		if base.NsPerOp > 0 {
			d.TimePct = (curr.NsPerOp - base.NsPerOp) / base.NsPerOp * 100
		}
		if base.AllocsPerOp > 0 {
			d.AllocsPct = float64(curr.AllocsPerOp-base.AllocsPerOp) / float64(base.AllocsPerOp) * 100
		}

		timeRegressed := d.TimePct > *threshold*100
		allocsRegressed := d.AllocsPct > *threshold*100

		switch {
		case timeRegressed || (allocsRegressed && *strictAllocs):
			d.Verdict = "REGRESSION"
			rep.Regressions++
			rep.Failed = true
		case allocsRegressed:
			d.Verdict = "ALLOCS"
		case d.TimePct < -improvementCutoff*100:
			d.Verdict = "FASTER"
			rep.Improvements++
		default:
			d.Verdict = "ok"
		}

		if d.Verdict != "ok" || *showAll {
			rep.Deltas = append(rep.Deltas, d)
		}
	}

	return rep
}

func printReport(rep *report) {
	fmt.Printf("Compared %d benchmarks: %d regressions, %d improvements\n",
		rep.Compared, rep.Regressions, rep.Improvements)

	if len(rep.Deltas) > 0 {
		fmt.Println()
		fmt.Printf("%-52s %12s %12s %9s  %s\n", "BENCHMARK", "CURRENT", "BASELINE", "TIME", "VERDICT")
		for _, d := range rep.Deltas {
			fmt.Printf("%-52s %9.0f ns %9.0f ns %+8.1f%%  %s\n",
				clip(d.Name, 52), d.Current, d.Baseline, d.TimePct, d.Verdict)
		}
	}

	for _, name := range rep.OnlyCurrent {
		fmt.Printf("new: %s (no baseline)\n", name)
	}
	for _, name := range rep.OnlyBaseline {
		fmt.Printf("gone: %s (in baseline only)\n", name)
	}

	fmt.Println()
	if rep.Failed {
		fmt.Printf("FAIL: %d benchmark(s) slowed down by more than %.0f%%\n", rep.Regressions, *threshold*100)
	} else {
		fmt.Println("PASS: no significant regressions")
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
