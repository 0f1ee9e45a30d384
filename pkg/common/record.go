/*
 * MIT License
 *
 * Copyright (c) 2023 EASL and the vHive community
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package common

// StageRecord is one exported row per analyzed stage.
type StageRecord struct {
	RunID   string `csv:"runID"`
	JobID   int    `csv:"jobID"`
	StageID int    `csv:"stageID"`

	NumTasks       int   `csv:"numTasks"`
	NumExecutors   int   `csv:"numExecutors"`
	StartTime      int64 `csv:"startTime"`
	Runtime        int64 `csv:"runtime"`
	MaxConcurrency int   `csv:"maxConcurrency"`

	InputMB     float64 `csv:"inputMB"`
	InputSource string  `csv:"inputSource"`
	OutputMB    float64 `csv:"outputMB"`
	NetworkMB   float64 `csv:"networkMB"`

	// Measurements in milliseconds
	IdealCPU     float64 `csv:"idealCPU"`
	IdealDisk    float64 `csv:"idealDisk"`
	IdealNetwork float64 `csv:"idealNetwork"`
	IdealTime    float64 `csv:"idealTime"`

	UtilizationIdealCPU  float64 `csv:"utilizationIdealCPU"`
	UtilizationIdealTime float64 `csv:"utilizationIdealTime"`

	// Measurements in seconds
	MetricsIdealCPU     float64 `csv:"metricsIdealCPU"`
	MetricsIdealNetwork float64 `csv:"metricsIdealNetwork"`
	MetricsIdealDisk    float64 `csv:"metricsIdealDisk"`

	LoadBalancingBadness float64 `csv:"loadBalancingBadness"`
}

// JobRecord is one exported row per analyzed job.
type JobRecord struct {
	RunID     string `csv:"runID"`
	JobID     int    `csv:"jobID"`
	NumStages int    `csv:"numStages"`
	NumTasks  int    `csv:"numTasks"`

	// Measurements in milliseconds
	StartTime  int64   `csv:"startTime"`
	ActualJCT  int64   `csv:"actualJCT"`
	IdealJCT   float64 `csv:"idealJCT"`
	InflationP float64 `csv:"inflationPercent"`
}
