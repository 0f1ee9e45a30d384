package common

// CPUMetrics describes CPU time consumed on an executor.
type CPUMetrics struct {
	CPUMillis float64
}

type NetworkMetrics struct {
	BytesTransmitted float64
	BytesReceived    float64

	// EffectiveTransmitThroughputBps is the transmit rate over the periods the link was
	// actually sending, so idle gaps do not dilute it.
	EffectiveTransmitThroughputBps float64
}

type DiskMetrics struct {
	BytesRead    float64
	BytesWritten float64

	// UtilizedSeconds is the utilization-weighted time the device was busy.
	UtilizedSeconds float64
}

// EffectiveThroughputBps returns the read+write rate achieved while the disk was busy, or 0
// when the disk was never busy.
func (d DiskMetrics) EffectiveThroughputBps() float64 {
	if d.UtilizedSeconds <= 0 {
		return 0
	}
	return (d.BytesRead + d.BytesWritten) / d.UtilizedSeconds
}

// ExecutorResourceMetrics aggregates one executor's resource usage over the window in which a
// set of its tasks ran.
type ExecutorResourceMetrics struct {
	CPU               CPUMetrics
	Network           NetworkMetrics
	DiskNameToMetrics map[string]DiskMetrics
}
