// Command pillbench measures the throughput of the pill detector pipeline on
// synthetic output tensors.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-pillcheck/benchmark"
)

func main() {
	var (
		scenariosPath string
		set           string
		outputDir     string
		iterations    int
		verbose       bool
	)
	flag.StringVar(&scenariosPath, "scenarios", "", "Path to a YAML scenario set")
	flag.StringVar(&set, "set", "quick", "Predefined scenario set when -scenarios is empty (quick, crowded)")
	flag.StringVar(&outputDir, "output-dir", "benchmark_results", "Output directory for the reports")
	flag.IntVar(&iterations, "iterations", 0, "Iterations per scenario, overrides the scenario set when set")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	var scenarios *benchmark.ScenarioSet
	switch {
	case scenariosPath != "":
		var err error
		if scenarios, err = benchmark.LoadScenarioSet(scenariosPath); err != nil {
			log.WithError(err).Fatal("failed to load scenarios")
		}
	case set == "crowded":
		scenarios = benchmark.CrowdedTrayScenarios()
	case set == "quick":
		scenarios = benchmark.QuickScenarios()
	default:
		log.WithField("set", set).Fatal("unknown scenario set")
	}

	if iterations > 0 {
		for i := range scenarios.Scenarios {
			scenarios.Scenarios[i].Iterations = iterations
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	suite := benchmark.NewSuite(outputDir, log.StandardLogger())
	suite.AddScenarioSet(scenarios)

	log.WithFields(log.Fields{
		"set":       scenarios.Name,
		"scenarios": len(scenarios.Scenarios),
	}).Info("running benchmark")
	if err := suite.RunAllScenarios(ctx); err != nil {
		log.WithError(err).Fatal("benchmark failed")
	}
}
