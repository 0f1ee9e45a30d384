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

const (
	// DefaultLinkBandwidthMBps is the per-machine link bandwidth that shuffles actually achieved
	// on a 1Gbps network (nominal: 125MB/s).
	DefaultLinkBandwidthMBps = 61.76

	// DefaultMillisPerJiffy assumes USER_HZ = 100.
	DefaultMillisPerJiffy = 10.0

	DefaultCoresPerMachine  = 8
	DefaultCoresPerExecutor = 8

	// DefaultOutlierThresholdMbps Samples at or below this bandwidth are idle periods.
	DefaultOutlierThresholdMbps = 10.0
)

// DefaultDataDisks are the block devices used as data directories on the measured cluster.
var DefaultDataDisks = []string{"xvdb", "xvdc", "xvdf"}

const (
	OneSecondInMilliseconds = 1000.0
	BytesPerMegabyte        = 1_048_576
	BitsPerByte             = 8
	BitsPerMegabit          = 1_000_000
)

type EventLogFormat string

const (
	JSONEventLog EventLogFormat = "json"
	CSVEventLog  EventLogFormat = "csv"
)

// ShuffleInput is the input source reported for stages whose tasks fetch shuffle data.
const ShuffleInput = "shuffle"
