package trace

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(executorID string, start, finish int64) Record {
	return Record{
		FieldStartTime:             float64(start),
		FieldFinishTime:            float64(finish),
		FieldExecutorID:            executorID,
		FieldComputeMonotaskMillis: 0.0,
		FieldDiskMonotaskMillis:    0.0,
		FieldInputMB:               0.0,
		FieldShuffleMBWritten:      0.0,
		FieldLocalMBRead:           0.0,
		FieldRemoteMBRead:          0.0,
		FieldHasFetch:              false,
	}
}

func TestNewTask(t *testing.T) {
	record := newRecord("exec-1", 1000, 1250)
	record[FieldComputeMonotaskMillis] = 120.5
	record[FieldHasFetch] = true
	record[FieldRemoteMBRead] = json.Number("4.5")
	record[FieldInputReadMethod] = "Hadoop"
	record[FieldStartTotalCPUJiffies] = json.Number("1500")
	record[FieldEndTotalCPUJiffies] = "1700"

	task, err := NewTask(record)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), task.StartTime)
	assert.Equal(t, int64(1250), task.FinishTime)
	assert.Equal(t, int64(250), task.Runtime())
	assert.Equal(t, "exec-1", task.ExecutorID)
	assert.Equal(t, 120.5, task.ComputeMonotaskMillis)
	assert.Equal(t, 4.5, task.RemoteMBRead)
	assert.True(t, task.HasFetch)
	assert.Equal(t, "Hadoop", task.InputReadMethod)
	assert.Equal(t, int64(1500), task.StartTotalCPUJiffies)
	assert.Equal(t, int64(1700), task.EndTotalCPUJiffies)
}

func TestNewTaskOptionalDefaults(t *testing.T) {
	task, err := NewTask(newRecord("exec-1", 0, 10))
	require.NoError(t, err)

	assert.Equal(t, DefaultInputReadMethod, task.InputReadMethod)
	assert.Equal(t, int64(DefaultStartTotalCPUJiffies), task.StartTotalCPUJiffies)
	assert.Equal(t, int64(DefaultEndTotalCPUJiffies), task.EndTotalCPUJiffies)
}

func TestNewTaskFromStrings(t *testing.T) {
	record := Record{
		FieldStartTime:             "5",
		FieldFinishTime:            "15",
		FieldExecutorID:            "7",
		FieldComputeMonotaskMillis: "3.25",
		FieldDiskMonotaskMillis:    "0",
		FieldInputMB:               "1",
		FieldShuffleMBWritten:      "2",
		FieldLocalMBRead:           "0",
		FieldRemoteMBRead:          "0",
		FieldHasFetch:              "false",
		FieldInputReadMethod:       "",
	}

	task, err := NewTask(record)
	require.NoError(t, err)
	assert.Equal(t, int64(10), task.Runtime())
	assert.Equal(t, "7", task.ExecutorID)
	assert.Equal(t, 3.25, task.ComputeMonotaskMillis)
	assert.Equal(t, 2.0, task.ShuffleMBWritten)
	assert.False(t, task.HasFetch)
	assert.Equal(t, DefaultInputReadMethod, task.InputReadMethod)
}

func TestNewTaskMalformed(t *testing.T) {
	tests := []struct {
		testName      string
		mutate        func(Record)
		expectedField string
	}{
		{
			testName:      "missing_start_time",
			mutate:        func(r Record) { delete(r, FieldStartTime) },
			expectedField: FieldStartTime,
		},
		{
			testName:      "missing_executor",
			mutate:        func(r Record) { delete(r, FieldExecutorID) },
			expectedField: FieldExecutorID,
		},
		{
			testName:      "empty_has_fetch",
			mutate:        func(r Record) { r[FieldHasFetch] = "" },
			expectedField: FieldHasFetch,
		},
		{
			testName:      "nil_remote_mb",
			mutate:        func(r Record) { r[FieldRemoteMBRead] = nil },
			expectedField: FieldRemoteMBRead,
		},
		{
			testName:      "non_numeric_input",
			mutate:        func(r Record) { r[FieldInputMB] = "lots" },
			expectedField: FieldInputMB,
		},
		{
			testName:      "fractional_time",
			mutate:        func(r Record) { r[FieldFinishTime] = 20.5 },
			expectedField: FieldFinishTime,
		},
		{
			testName:      "nan_compute_millis",
			mutate:        func(r Record) { r[FieldComputeMonotaskMillis] = "NaN" },
			expectedField: FieldComputeMonotaskMillis,
		},
		{
			testName:      "infinite_disk_millis",
			mutate:        func(r Record) { r[FieldDiskMonotaskMillis] = "Inf" },
			expectedField: FieldDiskMonotaskMillis,
		},
		{
			testName:      "infinite_remote_mb",
			mutate:        func(r Record) { r[FieldRemoteMBRead] = "+Inf" },
			expectedField: FieldRemoteMBRead,
		},
		{
			testName:      "nan_float_input",
			mutate:        func(r Record) { r[FieldInputMB] = math.NaN() },
			expectedField: FieldInputMB,
		},
		{
			testName:      "overflowing_finish_time",
			mutate:        func(r Record) { r[FieldFinishTime] = 1e30 },
			expectedField: FieldFinishTime,
		},
		{
			testName:      "overflowing_start_time_string",
			mutate:        func(r Record) { r[FieldStartTime] = "-1e30" },
			expectedField: FieldStartTime,
		},
		{
			testName:      "finish_before_start",
			mutate:        func(r Record) { r[FieldFinishTime] = 5.0 },
			expectedField: FieldFinishTime,
		},
		{
			testName: "jiffies_go_backwards",
			mutate: func(r Record) {
				r[FieldStartTotalCPUJiffies] = 200.0
				r[FieldEndTotalCPUJiffies] = 100.0
			},
			expectedField: FieldEndTotalCPUJiffies,
		},
		{
			testName:      "negative_compute",
			mutate:        func(r Record) { r[FieldComputeMonotaskMillis] = -1.0 },
			expectedField: FieldComputeMonotaskMillis,
		},
		{
			testName:      "bad_boolean",
			mutate:        func(r Record) { r[FieldHasFetch] = "maybe" },
			expectedField: FieldHasFetch,
		},
	}

	for _, test := range tests {
		t.Run(test.testName, func(t *testing.T) {
			record := newRecord("exec-1", 10, 20)
			test.mutate(record)

			task, err := NewTask(record)
			assert.Nil(t, task)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))

			var malformed *MalformedRecordError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, test.expectedField, malformed.Field)
		})
	}
}
