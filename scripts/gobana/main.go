package main

import (
	"NetSeismic/internal/report"
	"NetSeismic/internal/writer"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	plot := flag.Bool("plot", false, "Draw throughput charts")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/gobana [-plot] <report.dat>")
		os.Exit(1)
	}

	r, err := writer.ReadGob(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to decode gob data: %v", err)
	}

	if err := report.Print(os.Stdout, r); err != nil {
		log.Fatalf("Failed to print report: %v", err)
	}
	if *plot {
		report.Chart(os.Stdout, r, report.Sent)
		report.Chart(os.Stdout, r, report.Received)
	}
}
