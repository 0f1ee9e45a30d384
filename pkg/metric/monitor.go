package metric

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/eth-easl/idealtime/pkg/common"
	"github.com/eth-easl/idealtime/pkg/trace"

	log "github.com/sirupsen/logrus"
)

var (
	ErrUnknownExecutor = errors.New("no continuous monitor log for executor")
	ErrMixedExecutors  = errors.New("tasks ran on more than one executor")
	ErrNoTasks         = errors.New("no tasks")
)

// monitorFloat accepts JSON numbers as well as the "NaN"/"Infinity" strings the monitor emits.
type monitorFloat float64

func (f *monitorFloat) UnmarshalJSON(data []byte) error {
	var number float64
	if err := json.Unmarshal(data, &number); err == nil {
		*f = monitorFloat(number)
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	number, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return err
	}
	*f = monitorFloat(number)
	return nil
}

func (f monitorFloat) valid() bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

type monitorDiskUtilization struct {
	Utilization     monitorFloat `json:"Disk Utilization"`
	ReadThroughput  monitorFloat `json:"Read Throughput"`
	WriteThroughput monitorFloat `json:"Write Throughput"`
}

type monitorLine struct {
	CurrentTime *int64 `json:"Current Time"`

	CPUUtilization struct {
		TotalUser   monitorFloat `json:"Total User Utilization"`
		TotalSystem monitorFloat `json:"Total System Utilization"`
	} `json:"Cpu Utilization"`

	NetworkUtilization struct {
		BytesReceivedPerSecond    monitorFloat `json:"Bytes Received Per Second"`
		BytesTransmittedPerSecond monitorFloat `json:"Bytes Transmitted Per Second"`
	} `json:"Network Utilization"`

	DiskUtilization struct {
		DeviceNameToUtilization []map[string]monitorDiskUtilization `json:"Device Name To Utilization"`
	} `json:"Disk Utilization"`

	// Counters added in later monitor versions; absent ones stay zero.
	TotalDiskQueueLength    float64 `json:"Total Disk Queue Length"`
	FractionGCTime          float64 `json:"Fraction GC Time"`
	RunningComputeMonotasks int     `json:"Running Compute Monotasks"`
	RunningDiskMonotasks    int     `json:"Running Disk Monotasks"`
	RunningMacrotasks       int     `json:"Running Macrotasks"`
}

type DiskSample struct {
	Utilization        float64
	ReadThroughputBps  float64
	WriteThroughputBps float64
}

// MonitorSample is one continuous-monitor reading. Rates cover the interval since the previous
// sample.
type MonitorSample struct {
	TimeMillis int64

	// CPUUtilization is in cores: 1.0 is one fully busy core.
	CPUUtilization            float64
	BytesReceivedPerSecond    float64
	BytesTransmittedPerSecond float64
	DeviceNameToDiskSample    map[string]DiskSample

	TotalDiskQueueLength float64
	FractionGCTime       float64

	RunningComputeMonotasks int
	RunningDiskMonotasks    int
	RunningMacrotasks       int
}

// ParseMonitorLog reads a continuous monitor log. Non-JSON lines before the first sample are
// skipped; a bad line after that is taken to be the truncated end of the file.
func ParseMonitorLog(r io.Reader) ([]MonitorSample, error) {
	var samples []MonitorSample

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	atBeginning := true
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var line monitorLine
		if err := json.Unmarshal([]byte(text), &line); err != nil || line.CurrentTime == nil {
			if atBeginning {
				log.Debugf("Skipping non-JSON line at beginning of monitor log: %s", text)
				continue
			}
			log.Warn("Stopping parsing of monitor log due to incomplete line")
			break
		}
		atBeginning = false

		cpu := line.CPUUtilization.TotalUser + line.CPUUtilization.TotalSystem
		received := line.NetworkUtilization.BytesReceivedPerSecond
		transmitted := line.NetworkUtilization.BytesTransmittedPerSecond
		if !cpu.valid() || !received.valid() || !transmitted.valid() {
			log.Debugf("Dropping monitor sample at %d with invalid CPU or network values", *line.CurrentTime)
			continue
		}

		sample := MonitorSample{
			TimeMillis:                *line.CurrentTime,
			CPUUtilization:            float64(cpu),
			BytesReceivedPerSecond:    float64(received),
			BytesTransmittedPerSecond: float64(transmitted),
			DeviceNameToDiskSample:    make(map[string]DiskSample),
			TotalDiskQueueLength:      line.TotalDiskQueueLength,
			FractionGCTime:            line.FractionGCTime,
			RunningComputeMonotasks:   line.RunningComputeMonotasks,
			RunningDiskMonotasks:      line.RunningDiskMonotasks,
			RunningMacrotasks:         line.RunningMacrotasks,
		}
		for _, devices := range line.DiskUtilization.DeviceNameToUtilization {
			for name, disk := range devices {
				sample.DeviceNameToDiskSample[name] = DiskSample{
					Utilization:        validOrZero(disk.Utilization),
					ReadThroughputBps:  validOrZero(disk.ReadThroughput),
					WriteThroughputBps: validOrZero(disk.WriteThroughput),
				}
			}
		}

		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read monitor log: %w", err)
	}

	return samples, nil
}

func validOrZero(f monitorFloat) float64 {
	if !f.valid() {
		return 0
	}
	return float64(f)
}

// MonitorSource answers resource-metrics queries from per-executor continuous monitor logs.
type MonitorSource struct {
	executorIDToSamples   map[string][]MonitorSample
	executorIDToIntervals map[string]*common.IntervalSearch[int64]
}

// NewMonitorSource sorts copies of the samples by time; the caller's slices are left untouched.
func NewMonitorSource(executorIDToSamples map[string][]MonitorSample) *MonitorSource {
	sortedSamples := make(map[string][]MonitorSample, len(executorIDToSamples))
	executorIDToIntervals := make(map[string]*common.IntervalSearch[int64], len(executorIDToSamples))
	for executorID, unsorted := range executorIDToSamples {
		samples := append([]MonitorSample(nil), unsorted...)
		sort.SliceStable(samples, func(i, j int) bool { return samples[i].TimeMillis < samples[j].TimeMillis })

		times := make([]int64, len(samples))
		for i, sample := range samples {
			times[i] = sample.TimeMillis
		}
		sortedSamples[executorID] = samples
		executorIDToIntervals[executorID] = common.NewIntervalSearch(times)
	}

	return &MonitorSource{
		executorIDToSamples:   sortedSamples,
		executorIDToIntervals: executorIDToIntervals,
	}
}

// LoadMonitorSource parses the monitor log of every executor.
func LoadMonitorSource(executorIDToPath map[string]string) (*MonitorSource, error) {
	executorIDToSamples := make(map[string][]MonitorSample)

	for _, executorID := range common.SortedKeys(executorIDToPath) {
		path := executorIDToPath[executorID]
		log.Infof("Parsing continuous monitor log %s for executor %s", path, executorID)

		samples, err := loadMonitorLog(path)
		if err != nil {
			return nil, fmt.Errorf("executor %s: %w", executorID, err)
		}
		executorIDToSamples[executorID] = samples
	}

	return NewMonitorSource(executorIDToSamples), nil
}

func loadMonitorLog(path string) ([]MonitorSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseMonitorLog(file)
}

// ResourceMetricsFor integrates the executor's samples over the span of the given tasks. Each
// sample's rates are applied to the part of its interval that falls inside the span.
func (m *MonitorSource) ResourceMetricsFor(tasks []*trace.Task) (*common.ExecutorResourceMetrics, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	executorID := tasks[0].ExecutorID
	start, finish := tasks[0].StartTime, tasks[0].FinishTime
	for _, t := range tasks[1:] {
		if t.ExecutorID != executorID {
			return nil, fmt.Errorf("%w: %s and %s", ErrMixedExecutors, executorID, t.ExecutorID)
		}
		start = common.MinOf(start, t.StartTime)
		finish = common.MaxOf(finish, t.FinishTime)
	}

	samples, ok := m.executorIDToSamples[executorID]
	intervals := m.executorIDToIntervals[executorID]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownExecutor, executorID)
	}

	result := &common.ExecutorResourceMetrics{
		DiskNameToMetrics: make(map[string]common.DiskMetrics),
	}

	var transmittingSeconds float64
	for _, interval := range intervals.Overlapping(start, finish) {
		overlapMillis := common.MinOf(interval.End, finish) - common.MaxOf(interval.Start, start)
		sample := samples[interval.Value]
		seconds := float64(overlapMillis) / common.OneSecondInMilliseconds

		result.CPU.CPUMillis += sample.CPUUtilization * float64(overlapMillis)

		result.Network.BytesTransmitted += sample.BytesTransmittedPerSecond * seconds
		result.Network.BytesReceived += sample.BytesReceivedPerSecond * seconds
		if sample.BytesTransmittedPerSecond > 0 {
			transmittingSeconds += seconds
		}

		for name, disk := range sample.DeviceNameToDiskSample {
			metrics := result.DiskNameToMetrics[name]
			metrics.BytesRead += disk.ReadThroughputBps * seconds
			metrics.BytesWritten += disk.WriteThroughputBps * seconds
			metrics.UtilizedSeconds += disk.Utilization * seconds
			result.DiskNameToMetrics[name] = metrics
		}
	}

	if transmittingSeconds > 0 {
		result.Network.EffectiveTransmitThroughputBps = result.Network.BytesTransmitted / transmittingSeconds
	}

	return result, nil
}

// NetworkBandwidthsMbps returns the incoming and outgoing bandwidth of every sample across all
// executors, dropping samples at or below thresholdMbps.
func (m *MonitorSource) NetworkBandwidthsMbps(thresholdMbps float64) (incoming, outgoing []float64) {
	for _, executorID := range common.SortedKeys(m.executorIDToSamples) {
		for _, sample := range m.executorIDToSamples[executorID] {
			if in := common.BytesPerSecond2Mbps(sample.BytesReceivedPerSecond); in > thresholdMbps {
				incoming = append(incoming, in)
			}
			if out := common.BytesPerSecond2Mbps(sample.BytesTransmittedPerSecond); out > thresholdMbps {
				outgoing = append(outgoing, out)
			}
		}
	}
	return incoming, outgoing
}
