package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/eth-easl/idealtime/pkg/common"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidCores     = errors.New("cores per machine must be positive")
	ErrInvalidDisks     = errors.New("disks per machine must not be negative")
	ErrNoMetricsSource  = errors.New("no resource metrics source")
	ErrNegativeJiffies  = errors.New("executor cpu jiffies went backwards")
	ErrInvalidBandwidth = errors.New("link bandwidth must be positive")
)

// Calibration holds the hardware-specific constants of the ideal-time models.
type Calibration struct {
	// LinkBandwidthMBps is the achievable (not nominal) per-machine network bandwidth.
	LinkBandwidthMBps float64
	MillisPerJiffy    float64
	// DataDisks are the block devices that hold job data; other devices are ignored.
	DataDisks []string
}

func DefaultCalibration() Calibration {
	return Calibration{
		LinkBandwidthMBps: common.DefaultLinkBandwidthMBps,
		MillisPerJiffy:    common.DefaultMillisPerJiffy,
		DataDisks:         common.DefaultDataDisks,
	}
}

func (c Calibration) withDefaults() Calibration {
	defaults := DefaultCalibration()
	if c.LinkBandwidthMBps == 0 {
		c.LinkBandwidthMBps = defaults.LinkBandwidthMBps
	}
	if c.MillisPerJiffy == 0 {
		c.MillisPerJiffy = defaults.MillisPerJiffy
	}
	if c.DataDisks == nil {
		c.DataDisks = defaults.DataDisks
	}
	return c
}

func (c Calibration) isDataDisk(name string) bool {
	for _, disk := range c.DataDisks {
		if disk == name {
			return true
		}
	}
	return false
}

// IdealTimes are per-resource lower bounds on a stage's completion time, in milliseconds.
type IdealTimes struct {
	CPUMillis     float64
	DiskMillis    float64
	NetworkMillis float64
}

// Max is the bottleneck resource's ideal time.
func (t IdealTimes) Max() float64 {
	return common.MaxOf(t.CPUMillis, t.DiskMillis, t.NetworkMillis)
}

// Seconds returns the CPU, network and disk ideal times in seconds.
func (t IdealTimes) Seconds() (cpu, network, disk float64) {
	return t.CPUMillis / common.OneSecondInMilliseconds,
		t.NetworkMillis / common.OneSecondInMilliseconds,
		t.DiskMillis / common.OneSecondInMilliseconds
}

// ResourceMetricsSource reports what one executor consumed while the given tasks ran on it.
// Implementations must be deterministic and free of side effects.
type ResourceMetricsSource interface {
	ResourceMetricsFor(tasks []*Task) (*common.ExecutorResourceMetrics, error)
}

func (s *Stage) checkIdealTimeArgs(coresPerMachine int) error {
	if len(s.Tasks) == 0 {
		return ErrEmptyStage
	}
	if coresPerMachine <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCores, coresPerMachine)
	}
	if s.calibration.withDefaults().LinkBandwidthMBps < 0 {
		return ErrInvalidBandwidth
	}
	return nil
}

// IdealTimeComponents returns the time each resource would need if the stage's compute and disk
// monotasks were spread perfectly over every core and disk, and its shuffle saturated every link.
func (s *Stage) IdealTimeComponents(coresPerMachine, disksPerMachine int, sink io.Writer) (IdealTimes, error) {
	if err := s.checkIdealTimeArgs(coresPerMachine); err != nil {
		return IdealTimes{}, err
	}
	if disksPerMachine < 0 {
		return IdealTimes{}, fmt.Errorf("%w: %d", ErrInvalidDisks, disksPerMachine)
	}

	numMachines := s.NumExecutors()

	var totalComputeMillis, totalDiskMillis float64
	for _, t := range s.Tasks {
		totalComputeMillis += t.ComputeMonotaskMillis
		totalDiskMillis += t.DiskMonotaskMillis
	}

	ideal := IdealTimes{
		CPUMillis:     totalComputeMillis / float64(numMachines*coresPerMachine),
		NetworkMillis: s.idealNetworkMillis(numMachines),
	}
	if totalDiskMillis > 0 && disksPerMachine > 0 {
		ideal.DiskMillis = totalDiskMillis / float64(numMachines*disksPerMachine)
	}

	runtime, _ := s.Runtime()
	err := report(sink, fmt.Sprintf("Ideal times for stage: CPU: %vms, Disk: %vms, Network: %vms "+
		"(so %vms for whole stage); actual time was %d",
		ideal.CPUMillis, ideal.DiskMillis, ideal.NetworkMillis, ideal.Max(), runtime))

	return ideal, err
}

// IdealTime is the duration-based lower bound on the stage's completion time in milliseconds.
func (s *Stage) IdealTime(coresPerMachine, disksPerMachine int, sink io.Writer) (float64, error) {
	ideal, err := s.IdealTimeComponents(coresPerMachine, disksPerMachine, sink)
	if err != nil {
		return 0, err
	}
	return ideal.Max(), nil
}

// idealNetworkMillis assumes every machine's link runs at the calibrated bandwidth for the whole
// shuffle, since the parallelism of the transfers themselves is unknown.
func (s *Stage) idealNetworkMillis(numMachines int) float64 {
	networkMB := s.NetworkMB()
	if networkMB == 0 {
		return 0
	}

	bandwidth := s.calibration.withDefaults().LinkBandwidthMBps
	idealSeconds := networkMB / (float64(numMachines) * bandwidth)
	return idealSeconds * common.OneSecondInMilliseconds
}

// IdealTimeUtilizationComponents derives the CPU bound from the machine-wide jiffy counters
// sampled at task boundaries instead of from attributed monotask time. DiskMillis is always 0.
func (s *Stage) IdealTimeUtilizationComponents(coresPerMachine int, sink io.Writer) (IdealTimes, error) {
	if err := s.checkIdealTimeArgs(coresPerMachine); err != nil {
		return IdealTimes{}, err
	}

	executorIDToTasks := s.ExecutorIDToTasks()
	var totalJiffies int64
	for _, executorID := range common.SortedKeys(executorIDToTasks) {
		tasks := executorIDToTasks[executorID]
		startJiffies, endJiffies := tasks[0].StartTotalCPUJiffies, tasks[0].EndTotalCPUJiffies
		for _, t := range tasks[1:] {
			startJiffies = common.MinOf(startJiffies, t.StartTotalCPUJiffies)
			endJiffies = common.MaxOf(endJiffies, t.EndTotalCPUJiffies)
		}

		elapsed := endJiffies - startJiffies
		if elapsed < 0 {
			return IdealTimes{}, fmt.Errorf("%w: executor %s", ErrNegativeJiffies, executorID)
		}
		log.Debugf("%d jiffies elapsed on executor %s", elapsed, executorID)
		totalJiffies += elapsed
	}

	numExecutors := len(executorIDToTasks)
	totalMillis := float64(totalJiffies) * s.calibration.withDefaults().MillisPerJiffy

	ideal := IdealTimes{
		CPUMillis:     totalMillis / float64(numExecutors*coresPerMachine),
		NetworkMillis: s.idealNetworkMillis(numExecutors),
	}

	err := report(sink, fmt.Sprintf("Ideal times for stage based on utilization: CPU: %vms, Network: %vms",
		ideal.CPUMillis, ideal.NetworkMillis))

	return ideal, err
}

// IdealTimeUtilization is the utilization-based lower bound in milliseconds.
func (s *Stage) IdealTimeUtilization(coresPerMachine int, sink io.Writer) (float64, error) {
	ideal, err := s.IdealTimeUtilizationComponents(coresPerMachine, sink)
	if err != nil {
		return 0, err
	}
	return ideal.Max(), nil
}

// GetExecutorIDToResourceMetrics queries source once per executor the stage ran on.
func (s *Stage) GetExecutorIDToResourceMetrics(source ResourceMetricsSource) (map[string]*common.ExecutorResourceMetrics, error) {
	if source == nil {
		return nil, ErrNoMetricsSource
	}

	result := make(map[string]*common.ExecutorResourceMetrics)
	for executorID, tasks := range s.ExecutorIDToTasks() {
		metrics, err := source.ResourceMetricsFor(tasks)
		if err != nil {
			return nil, fmt.Errorf("resource metrics for executor %s: %w", executorID, err)
		}
		result[executorID] = metrics
	}
	return result, nil
}

// GetIdealTimesFromMetrics computes the CPU, network and disk bounds from measured executor
// resource usage. Use Seconds on the result for the values in seconds.
func (s *Stage) GetIdealTimesFromMetrics(source ResourceMetricsSource, coresPerExecutor int) (IdealTimes, error) {
	if err := s.checkIdealTimeArgs(coresPerExecutor); err != nil {
		return IdealTimes{}, err
	}

	executorIDToMetrics, err := s.GetExecutorIDToResourceMetrics(source)
	if err != nil {
		return IdealTimes{}, err
	}

	calibration := s.calibration.withDefaults()

	var totalCPUMillis float64
	var totalNetworkBytes, totalNetworkThroughputBps float64
	var totalDiskBytes, totalDiskThroughputBps float64

	for _, executorID := range common.SortedKeys(executorIDToMetrics) {
		metrics := executorIDToMetrics[executorID]
		totalCPUMillis += metrics.CPU.CPUMillis

		totalNetworkBytes += metrics.Network.BytesTransmitted
		totalNetworkThroughputBps += metrics.Network.EffectiveTransmitThroughputBps

		for _, diskName := range common.SortedKeys(metrics.DiskNameToMetrics) {
			if !calibration.isDataDisk(diskName) {
				log.Warnf("Ignoring disk %s on executor %s: not a data disk", diskName, executorID)
				continue
			}
			disk := metrics.DiskNameToMetrics[diskName]
			totalDiskBytes += disk.BytesRead + disk.BytesWritten
			totalDiskThroughputBps += disk.EffectiveThroughputBps()
		}
	}

	numExecutors := len(executorIDToMetrics)
	ideal := IdealTimes{
		CPUMillis: totalCPUMillis / float64(numExecutors*coresPerExecutor),
	}

	// Bytes moved while the job itself shuffled nothing are control messages.
	if s.NetworkMB() > 0 {
		if totalNetworkThroughputBps > 0 {
			ideal.NetworkMillis = totalNetworkBytes / totalNetworkThroughputBps * common.OneSecondInMilliseconds
		} else {
			log.Warnf("Outputting 0 network seconds because throughput while transmitting %v bytes was 0.", totalNetworkBytes)
		}
	}

	if totalDiskThroughputBps > 0 {
		ideal.DiskMillis = totalDiskBytes / totalDiskThroughputBps * common.OneSecondInMilliseconds
	} else {
		log.Warnf("Outputting 0 disk seconds because throughput while writing %v bytes was 0.", totalDiskBytes)
	}

	return ideal, nil
}

func report(sink io.Writer, message string) error {
	log.Info(message)
	if sink == nil {
		return nil
	}
	if _, err := fmt.Fprintln(sink, message); err != nil {
		return fmt.Errorf("failed to write ideal times: %w", err)
	}
	return nil
}
