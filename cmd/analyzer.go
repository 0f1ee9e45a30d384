package main

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/eth-easl/idealtime/pkg/analysis"
	"github.com/eth-easl/idealtime/pkg/common"
	"github.com/eth-easl/idealtime/pkg/config"
	"github.com/eth-easl/idealtime/pkg/metric"
	"github.com/eth-easl/idealtime/pkg/trace"

	log "github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "cmd/config.json", "Path to analyzer configuration file")
	verbosity  = flag.String("verbosity", "info", "Logging verbosity - choose from [info, debug, trace]")
	outputFile = flag.String("output", "", "File to which the analysis results are written (optional)")
	exportCSV  = flag.Bool("export", true, "Export per-stage and per-job CSV reports")
)

func init() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: time.StampMilli,
		FullTimestamp:   true,
	})
	log.SetOutput(os.Stdout)

	switch *verbosity {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "trace":
		log.SetLevel(log.TraceLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

func main() {
	cfg := config.ReadConfigurationFile(*configPath)

	jobs, err := trace.NewEventLogParser(cfg.EventLogPath, cfg.EventLogFormat, cfg.Calibration()).Parse()
	common.Check(err)
	log.Infof("Finished reading input data: %d jobs", len(jobs))

	var output io.Writer
	if *outputFile != "" {
		file, err := os.Create(*outputFile)
		common.Check(err)
		defer file.Close()
		output = file
	}

	analyzer := analysis.NewAnalyzer(&cfg, jobs, output)

	if len(cfg.MonitorLogPaths) > 0 {
		monitor, err := metric.LoadMonitorSource(cfg.MonitorLogPaths)
		common.Check(err)
		analyzer.SetMonitorSource(monitor)
	}

	if *exportCSV {
		analyzer.SetExporter(metric.NewExporter())
	}

	common.Check(analyzer.Run())
}
