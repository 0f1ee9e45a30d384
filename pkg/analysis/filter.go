package analysis

import "github.com/eth-easl/idealtime/pkg/trace"

// KeepExperimentJobs drops the warm-up jobs and the job that generates the input data, which
// run first and so hold the lowest ids.
func KeepExperimentJobs(jobs map[int]*trace.Job, numWarmupJobs int) map[int]*trace.Job {
	result := make(map[int]*trace.Job)
	for jobID, job := range jobs {
		if jobID >= numWarmupJobs+1 {
			result[jobID] = job
		}
	}
	return result
}
