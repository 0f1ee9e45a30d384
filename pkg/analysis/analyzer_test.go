package analysis

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eth-easl/idealtime/pkg/common"
	"github.com/eth-easl/idealtime/pkg/config"
	"github.com/eth-easl/idealtime/pkg/metric"
	"github.com/eth-easl/idealtime/pkg/trace"
	"github.com/gocarina/gocsv"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskSpec struct {
	executorID    string
	start, finish int64
	computeMillis float64
	inputMB       float64
	localMB       float64
	remoteMB      float64
	startJiffies  int64
	endJiffies    int64
}

func (s taskSpec) record() trace.Record {
	return trace.Record{
		trace.FieldStartTime:             float64(s.start),
		trace.FieldFinishTime:            float64(s.finish),
		trace.FieldExecutorID:            s.executorID,
		trace.FieldComputeMonotaskMillis: s.computeMillis,
		trace.FieldDiskMonotaskMillis:    0.0,
		trace.FieldInputMB:               s.inputMB,
		trace.FieldShuffleMBWritten:      0.0,
		trace.FieldLocalMBRead:           s.localMB,
		trace.FieldRemoteMBRead:          s.remoteMB,
		trace.FieldHasFetch:              s.localMB+s.remoteMB > 0,
		trace.FieldStartTotalCPUJiffies:  float64(s.startJiffies),
		trace.FieldEndTotalCPUJiffies:    float64(s.endJiffies),
	}
}

// testJobs returns a one-stage warm-up job 1 and a map/reduce job 2 over two executors.
func testJobs(t *testing.T) map[int]*trace.Job {
	t.Helper()

	calibration := trace.DefaultCalibration()
	warmup := trace.NewJob(1, calibration)
	require.NoError(t, warmup.AddEvent(0, taskSpec{executorID: "exec-1", start: 0, finish: 500, computeMillis: 100}.record()))

	experiment := trace.NewJob(2, calibration)
	for _, spec := range []taskSpec{
		{executorID: "exec-1", start: 1000, finish: 1400, computeMillis: 200, inputMB: 10, endJiffies: 40},
		{executorID: "exec-2", start: 1000, finish: 1500, computeMillis: 300, inputMB: 10, endJiffies: 60},
	} {
		require.NoError(t, experiment.AddEvent(0, spec.record()))
	}
	for _, spec := range []taskSpec{
		{executorID: "exec-1", start: 1500, finish: 1900, computeMillis: 100, localMB: 1, remoteMB: 2, startJiffies: 40, endJiffies: 80},
		{executorID: "exec-2", start: 1500, finish: 2000, computeMillis: 300, localMB: 1, remoteMB: 2, startJiffies: 60, endJiffies: 100},
	} {
		require.NoError(t, experiment.AddEvent(1, spec.record()))
	}

	return map[int]*trace.Job{1: warmup, 2: experiment}
}

func testConfig(t *testing.T) *config.AnalyzerConfiguration {
	t.Helper()

	cfg, err := config.ParseConfiguration("analyzer.json", []byte(`{
		"EventLogPath": "event_log.json",
		"CoresPerMachine": 8,
		"NumWarmupJobs": 1
	}`))
	require.NoError(t, err)
	cfg.OutputPathPrefix = filepath.Join(t.TempDir(), "run")
	return &cfg
}

func TestAnalyzerRun(t *testing.T) {
	var output bytes.Buffer
	analyzer := NewAnalyzer(testConfig(t), testJobs(t), &output)

	require.NoError(t, analyzer.Run())

	report := output.String()
	assert.Contains(t, report, "job 1 start: 0 ms")
	assert.Contains(t, report, "job 2 start: 1000 ms")
	assert.Contains(t, report, "stage 1 start: 1500 ms, end: 2000 ms, delta: 500 ms")
	assert.Contains(t, report, "job 2 end: 2000 ms, delta: 1000 ms")
	assert.Contains(t, report, "num stages: 1")
	assert.Contains(t, report, "actual jct: 1000 ms")
	assert.Contains(t, report, "Total shuffle bytes: 6291456")
	assert.Contains(t, report, "Total remote shuffle bytes: 4194304")
	assert.Contains(t, report, "Experiment jobs: [2]")
	assert.Contains(t, report, "Min map stage compute time (ms): 200")
	assert.Contains(t, report, "Max reduce stage compute time (ms): 300")
	assert.Contains(t, report, "No continuous monitor provided! Cannot analyze network bandwidth!")
	assert.Contains(t, report, "Ideal times for stage: CPU: 31.25ms")
	assert.Contains(t, strings.ToUpper(report), "NETWORK MB")
}

func TestAnalyzerRunNoJobs(t *testing.T) {
	analyzer := NewAnalyzer(testConfig(t), map[int]*trace.Job{}, nil)
	assert.Error(t, analyzer.Run())
}

func TestComputeTimesMillis(t *testing.T) {
	analyzer := NewAnalyzer(testConfig(t), testJobs(t), nil)

	mapTimes, reduceTimes := analyzer.ComputeTimesMillis()
	assert.ElementsMatch(t, []float64{200, 300}, mapTimes)
	assert.ElementsMatch(t, []float64{100, 300}, reduceTimes)
}

func TestAnalyzerStageRecord(t *testing.T) {
	jobs := testJobs(t)
	analyzer := NewAnalyzer(testConfig(t), jobs, nil)

	record, err := analyzer.StageRecord(2, 1, jobs[2].Stages[1])
	require.NoError(t, err)

	assert.Equal(t, 2, record.NumTasks)
	assert.Equal(t, 2, record.NumExecutors)
	assert.Equal(t, int64(500), record.Runtime)
	assert.Equal(t, 2, record.MaxConcurrency)
	assert.Equal(t, 4.0, record.NetworkMB)
	assert.InDelta(t, 25.0, record.IdealCPU, 1e-9)
	assert.InDelta(t, 4/(2*61.76)*1000, record.IdealNetwork, 1e-9)
	assert.Equal(t, record.IdealNetwork, record.IdealTime)
	assert.Zero(t, record.UtilizationIdealCPU)
}

func TestAnalyzerExport(t *testing.T) {
	cfg := testConfig(t)
	exporter := metric.NewExporter()

	analyzer := NewAnalyzer(cfg, testJobs(t), nil)
	analyzer.SetExporter(exporter)
	require.NoError(t, analyzer.Run())

	assert.Equal(t, 3, exporter.GetStageRecordLen())
	assert.Equal(t, 2, exporter.GetJobRecordLen())

	for _, suffix := range []string{"_stages.csv", "_jobs.csv", "_inflation_summary"} {
		_, err := os.Stat(cfg.OutputPathPrefix + suffix)
		assert.NoError(t, err, suffix)
	}

	stages, err := os.ReadFile(cfg.OutputPathPrefix + "_stages.csv")
	require.NoError(t, err)
	assert.Contains(t, string(stages), exporter.RunID())
}

func TestAnalyzerExportReusesStageIdealTimes(t *testing.T) {
	cfg := testConfig(t)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	analyzer := NewAnalyzer(cfg, testJobs(t), nil)
	analyzer.SetExporter(metric.NewExporter())
	require.NoError(t, analyzer.Run())

	// Two lines from the detailed report of the map/reduce job, one per exported stage.
	var idealTimeLines int
	for _, entry := range hook.AllEntries() {
		if strings.HasPrefix(entry.Message, "Ideal times for stage:") {
			idealTimeLines++
		}
	}
	assert.Equal(t, 5, idealTimeLines)

	stagesFile, err := os.Open(cfg.OutputPathPrefix + "_stages.csv")
	require.NoError(t, err)
	defer stagesFile.Close()
	var stages []common.StageRecord
	require.NoError(t, gocsv.UnmarshalFile(stagesFile, &stages))

	jobsFile, err := os.Open(cfg.OutputPathPrefix + "_jobs.csv")
	require.NoError(t, err)
	defer jobsFile.Close()
	var jobs []common.JobRecord
	require.NoError(t, gocsv.UnmarshalFile(jobsFile, &jobs))

	jobIDToIdeal := make(map[int]float64)
	for _, stage := range stages {
		jobIDToIdeal[stage.JobID] += stage.IdealTime
	}
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.InDelta(t, jobIDToIdeal[job.JobID], job.IdealJCT, 1e-6, "job %d", job.JobID)
	}
	assert.InDelta(t, 12.5, jobs[0].IdealJCT, 1e-9)
	assert.InDelta(t, 31.25+4/(2*61.76)*1000, jobs[1].IdealJCT, 1e-6)
}
