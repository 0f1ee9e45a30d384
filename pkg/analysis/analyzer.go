package analysis

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/eth-easl/idealtime/pkg/common"
	"github.com/eth-easl/idealtime/pkg/config"
	"github.com/eth-easl/idealtime/pkg/metric"
	"github.com/eth-easl/idealtime/pkg/trace"
	"github.com/olekukonko/tablewriter"

	log "github.com/sirupsen/logrus"
)

// Analyzer reports actual versus ideal completion times for every job of one event log.
type Analyzer struct {
	cfg  *config.AnalyzerConfiguration
	jobs map[int]*trace.Job

	// output receives every report line; nil only logs.
	output io.Writer

	monitor     *metric.MonitorSource
	exporter    *metric.Exporter
	classifiers []trace.StragglerClassifier
}

func NewAnalyzer(cfg *config.AnalyzerConfiguration, jobs map[int]*trace.Job, output io.Writer) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		jobs:   jobs,
		output: output,
	}
}

// SetMonitorSource enables the utilization and metrics based models and the bandwidth report.
func (a *Analyzer) SetMonitorSource(monitor *metric.MonitorSource) {
	a.monitor = monitor
}

func (a *Analyzer) SetExporter(exporter *metric.Exporter) {
	a.exporter = exporter
}

func (a *Analyzer) AddStragglerClassifier(classifier trace.StragglerClassifier) {
	a.classifiers = append(a.classifiers, classifier)
}

func (a *Analyzer) logf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	log.Info(message)
	if a.output != nil {
		fmt.Fprintln(a.output, message)
	}
}

func (a *Analyzer) Run() error {
	if len(a.jobs) == 0 {
		return errors.New("no jobs to analyze")
	}

	if err := a.LogStartEndTimes(); err != nil {
		return err
	}
	if err := a.LogDetailedJobInfo(); err != nil {
		return err
	}

	mapComputeTimes, reduceComputeTimes := a.ComputeTimesMillis()
	a.logf("\nStatistics:")
	a.ReportStatistics(mapComputeTimes, "map stage compute time (ms)")
	a.ReportStatistics(reduceComputeTimes, "reduce stage compute time (ms)")

	if a.monitor == nil {
		a.logf("No continuous monitor provided! Cannot analyze network bandwidth!")
	} else {
		incoming, outgoing := a.monitor.NetworkBandwidthsMbps(a.cfg.OutlierThresholdMbps)
		a.ReportStatistics(incoming, "incoming network bandwidth (Mb/s)")
		a.ReportStatistics(outgoing, "outgoing network bandwidth (Mb/s)")
	}

	if a.exporter != nil {
		if err := a.Export(); err != nil {
			return err
		}
	}

	return nil
}

// LogStartEndTimes logs job and stage boundaries relative to the start of the first job.
func (a *Analyzer) LogStartEndTimes() error {
	a.logf("Start and end times:\n")

	jobIDs := common.SortedKeys(a.jobs)
	beginningOfTime, err := a.jobs[jobIDs[0]].StartTime()
	if err != nil {
		return fmt.Errorf("job %d: %w", jobIDs[0], err)
	}

	for _, jobID := range jobIDs {
		job := a.jobs[jobID]
		jobStart, err := job.StartTime()
		if err != nil {
			return fmt.Errorf("job %d: %w", jobID, err)
		}
		a.logf("job %d start: %d ms", jobID, jobStart-beginningOfTime)

		for _, stageID := range job.SortedStageIDs() {
			stage := job.Stages[stageID]
			stageEnd, err := stage.FinishTime()
			if err != nil {
				return fmt.Errorf("job %d stage %d: %w", jobID, stageID, err)
			}
			a.logf("stage %d start: %d ms, end: %d ms, delta: %d ms", stageID,
				stage.StartTime-beginningOfTime, stageEnd-beginningOfTime, stageEnd-stage.StartTime)
		}

		jobEnd, err := job.FinishTime()
		if err != nil {
			return fmt.Errorf("job %d: %w", jobID, err)
		}
		a.logf("job %d end: %d ms, delta: %d ms\n", jobID, jobEnd-beginningOfTime, jobEnd-jobStart)
	}

	return nil
}

// LogDetailedJobInfo reports ideal versus actual JCT and the shuffle breakdown of map/reduce
// jobs, and a stage table for every job.
func (a *Analyzer) LogDetailedJobInfo() error {
	a.logf("\nDetailed job info:\n")

	for _, jobID := range common.SortedKeys(a.jobs) {
		job := a.jobs[jobID]
		a.logf("job %d:", jobID)

		if err := a.logStageTable(job); err != nil {
			return err
		}

		stageIDs := job.SortedStageIDs()
		if len(stageIDs) != 2 {
			a.logf("num stages: %d\n", len(stageIDs))
			continue
		}

		for _, stageID := range stageIDs {
			executorIDToTasks := job.Stages[stageID].ExecutorIDToTasks()
			numTasks := make(map[string]int, len(executorIDToTasks))
			for executorID, tasks := range executorIDToTasks {
				numTasks[executorID] = len(tasks)
			}
			a.logf("Stage %d num tasks per worker: %v", stageID, numTasks)
		}

		mapStage, reduceStage := job.Stages[stageIDs[0]], job.Stages[stageIDs[1]]
		a.logf("map stage start: %d ms", mapStage.StartTime)
		reduceEnd, err := reduceStage.FinishTime()
		if err != nil {
			return err
		}
		a.logf("reduce stage end: %d ms (delta: %d ms)", reduceEnd, reduceEnd-mapStage.StartTime)

		actualJCT, err := job.Runtime()
		if err != nil {
			return err
		}
		a.logf("actual jct: %d ms", actualJCT)

		idealJCT, err := job.IdealTime(a.cfg.CoresPerMachine, a.cfg.DisksPerMachine, a.output)
		if err != nil {
			return fmt.Errorf("job %d: %w", jobID, err)
		}
		a.logf("ideal jct: %.2f ms", idealJCT)
		if inflation, err := trace.Inflation(actualJCT, idealJCT); err == nil {
			a.logf("jct inflation: %.2f%%", 100*inflation)
		} else {
			log.Warnf("Cannot compute jct inflation of job %d: %v", jobID, err)
		}

		a.logf("%d tasks in the map stage", len(mapStage.Tasks))
		a.logf("%d tasks in reduce stage", len(reduceStage.Tasks))

		var localShuffleBytes float64
		executorIDToBytesReceived := make(map[string]float64)
		for _, t := range reduceStage.Tasks {
			localShuffleBytes += common.Mib2b(t.LocalMBRead)
			executorIDToBytesReceived[t.ExecutorID] += common.Mib2b(t.RemoteMBRead)
		}

		var remoteShuffleBytes float64
		for _, bytesReceived := range executorIDToBytesReceived {
			remoteShuffleBytes += bytesReceived
		}
		a.logf("Total shuffle bytes: %.0f", localShuffleBytes+remoteShuffleBytes)
		a.logf("Bytes received per worker:")
		for _, executorID := range common.SortedKeys(executorIDToBytesReceived) {
			a.logf("  %s: %.0f bytes", executorID, executorIDToBytesReceived[executorID])
		}
		a.logf("Total remote shuffle bytes: %.0f\n", remoteShuffleBytes)
	}

	return nil
}

func (a *Analyzer) logStageTable(job *trace.Job) error {
	if a.output == nil {
		return nil
	}

	table := tablewriter.NewWriter(a.output)
	table.SetHeader([]string{"Stage", "Tasks", "Executors", "Runtime (ms)", "Input MB", "Output MB", "Network MB", "Summary"})
	for _, stageID := range job.SortedStageIDs() {
		stage := job.Stages[stageID]
		runtime, err := stage.Runtime()
		if err != nil {
			return fmt.Errorf("job %d stage %d: %w", job.ID, stageID, err)
		}
		summary, err := stage.Summary(a.classifiers...)
		if err != nil {
			return fmt.Errorf("job %d stage %d: %w", job.ID, stageID, err)
		}
		table.Append([]string{
			strconv.Itoa(stageID),
			strconv.Itoa(len(stage.Tasks)),
			strconv.Itoa(stage.NumExecutors()),
			strconv.FormatInt(runtime, 10),
			fmt.Sprintf("%.2f", stage.InputMB()),
			fmt.Sprintf("%.2f", stage.OutputMB()),
			fmt.Sprintf("%.2f", stage.NetworkMB()),
			summary,
		})
	}
	table.Render()

	return nil
}

// ComputeTimesMillis returns the compute monotask times of the map and reduce stages of every
// two-stage experiment job.
func (a *Analyzer) ComputeTimesMillis() (mapTimes, reduceTimes []float64) {
	experimentJobs := KeepExperimentJobs(a.jobs, a.cfg.NumWarmupJobs)
	a.logf("Experiment jobs: %v", common.SortedKeys(experimentJobs))

	for _, jobID := range common.SortedKeys(experimentJobs) {
		stageIDs := experimentJobs[jobID].SortedStageIDs()
		if len(stageIDs) != 2 {
			log.Warnf("Skipping job %d with %d stages when collecting compute times", jobID, len(stageIDs))
			continue
		}

		for _, t := range experimentJobs[jobID].Stages[stageIDs[0]].Tasks {
			mapTimes = append(mapTimes, t.ComputeMonotaskMillis)
		}
		for _, t := range experimentJobs[jobID].Stages[stageIDs[1]].Tasks {
			reduceTimes = append(reduceTimes, t.ComputeMonotaskMillis)
		}
	}

	return mapTimes, reduceTimes
}

func (a *Analyzer) ReportStatistics(values []float64, label string) {
	statistics, err := Summarize(values)
	if err != nil {
		a.logf("No values to analyze for x_label: %s", label)
		return
	}

	a.logf("\nMin %s: %v", label, statistics.Minimum)
	a.logf("Max %s: %v", label, statistics.Maximum)
	a.logf("Median %s: %v", label, statistics.Median)
	a.logf("Average %s : %.2f", label, statistics.Average)
	a.logf("Standard deviation %s : %.2f", label, statistics.StdDev)
	a.logf("Variance using current model: %.2f", statistics.Spread)
}

// StageRecord evaluates every ideal-time model on one stage.
func (a *Analyzer) StageRecord(jobID, stageID int, stage *trace.Stage) (common.StageRecord, error) {
	runtime, err := stage.Runtime()
	if err != nil {
		return common.StageRecord{}, err
	}

	ideal, err := stage.IdealTimeComponents(a.cfg.CoresPerMachine, a.cfg.DisksPerMachine, a.output)
	if err != nil {
		return common.StageRecord{}, err
	}

	record := common.StageRecord{
		JobID:          jobID,
		StageID:        stageID,
		NumTasks:       len(stage.Tasks),
		NumExecutors:   stage.NumExecutors(),
		StartTime:      stage.StartTime,
		Runtime:        runtime,
		MaxConcurrency: stage.MaxConcurrency(),
		InputMB:        stage.InputMB(),
		InputSource:    stage.InputSource(),
		OutputMB:       stage.OutputMB(),
		NetworkMB:      stage.NetworkMB(),
		IdealCPU:       ideal.CPUMillis,
		IdealDisk:      ideal.DiskMillis,
		IdealNetwork:   ideal.NetworkMillis,
		IdealTime:      ideal.Max(),
	}

	badness, err := stage.LoadBalancingBadness()
	switch {
	case errors.Is(err, trace.ErrZeroIdealSpan):
		log.Warnf("Job %d stage %d: %v, load balancing badness reported as 0", jobID, stageID, err)
	case err != nil:
		return common.StageRecord{}, err
	default:
		record.LoadBalancingBadness = badness
	}

	if a.monitor == nil {
		return record, nil
	}

	utilization, err := stage.IdealTimeUtilizationComponents(a.cfg.CoresPerMachine, a.output)
	if err != nil {
		return common.StageRecord{}, err
	}
	record.UtilizationIdealCPU = utilization.CPUMillis
	record.UtilizationIdealTime = utilization.Max()

	fromMetrics, err := stage.GetIdealTimesFromMetrics(a.monitor, a.cfg.CoresPerExecutor)
	if err != nil {
		return common.StageRecord{}, err
	}
	record.MetricsIdealCPU, record.MetricsIdealNetwork, record.MetricsIdealDisk = fromMetrics.Seconds()

	return record, nil
}

// Export reports every stage and job to the exporter, saves the CSV files and writes the
// percentile summary of JCT inflation.
func (a *Analyzer) Export() error {
	var inflations []float64

	for _, jobID := range common.SortedKeys(a.jobs) {
		job := a.jobs[jobID]

		var numTasks int
		var ideal float64
		for _, stageID := range job.SortedStageIDs() {
			record, err := a.StageRecord(jobID, stageID, job.Stages[stageID])
			if err != nil {
				return fmt.Errorf("job %d stage %d: %w", jobID, stageID, err)
			}
			numTasks += record.NumTasks
			ideal += record.IdealTime
			a.exporter.ReportStage(record)
		}

		start, err := job.StartTime()
		if err != nil {
			return fmt.Errorf("job %d: %w", jobID, err)
		}
		actual, err := job.Runtime()
		if err != nil {
			return fmt.Errorf("job %d: %w", jobID, err)
		}

		record := common.JobRecord{
			JobID:     jobID,
			NumStages: len(job.Stages),
			NumTasks:  numTasks,
			StartTime: start,
			ActualJCT: actual,
			IdealJCT:  ideal,
		}
		if inflation, err := trace.Inflation(actual, ideal); err == nil {
			record.InflationP = 100 * inflation
			inflations = append(inflations, record.InflationP)
		}
		a.exporter.ReportJob(record)
	}

	if err := a.exporter.FinishAndSave(a.cfg.OutputPathPrefix); err != nil {
		return err
	}

	if len(inflations) == 0 {
		log.Warn("No job has a non-zero ideal time, skipping the inflation summary")
		return nil
	}
	return WriteSummaryFile(inflations, a.cfg.OutputPathPrefix+"_inflation_summary")
}
