package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/notargets/geodrive/piping"
)

var (
	resultsFile  string
	expectedFile string
	relTol       = 1e-9
)

func main() {
	resultsFilePtr := flag.String("results", resultsFile, "CSV file written by geodrive sweep --csv")
	expectedFilePtr := flag.String("expected", expectedFile, "CSV file of scenario,critical_head reference values")
	relTolPtr := flag.Float64("tol", relTol, "relative tolerance of the comparison")
	flag.Parse()
	resultsFile, expectedFile, relTol = *resultsFilePtr, *expectedFilePtr, *relTolPtr
	if len(resultsFile) == 0 || len(expectedFile) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	fmt.Printf("Results file: %v\nExpected file: %v\n", resultsFile, expectedFile)
	got, order := readCSV(resultsFile)
	expected, _ := readCSV(expectedFile)

	results := make([]piping.CriticalHead, len(order))
	for i, name := range order {
		results[i] = piping.CriticalHead{Scenario: name, Search: piping.Search{Head: got[name]}}
	}
	mismatches := piping.Compare(results, expected, relTol)
	for _, m := range mismatches {
		fmt.Printf("%-48s got %8.4f, expected %8.4f, rel. error %v\n",
			m.Scenario, m.Got, m.Expected, relError(m.Got, m.Expected))
	}
	fmt.Printf("%d of %d expected critical heads match\n", len(expected)-len(mismatches), len(expected))
	if len(mismatches) != 0 {
		os.Exit(1)
	}
}

func relError(got, expected float64) float64 {
	if expected == 0 {
		return math.Abs(got)
	}
	return math.Abs(got-expected) / math.Abs(expected)
}

func readCSV(csvFile string) (heads map[string]float64, order []string) {
	var (
		err error
		f   *os.File
	)
	if f, err = os.Open(csvFile); err != nil {
		panic(err)
	}
	defer f.Close()
	if heads, order, err = piping.ReadCSV(bufio.NewReader(f)); err != nil {
		panic(fmt.Errorf("%s: %w", csvFile, err))
	}
	return
}
