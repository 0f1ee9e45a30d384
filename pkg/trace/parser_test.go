package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eth-easl/idealtime/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonTaskRecords = `not json at all
{"job_id": 1, "stage_id": 0, "start_time": 100, "finish_time": 300, "executor_id": "exec-1", "compute_monotask_millis": 150, "disk_monotask_millis": 20, "input_mb": 64, "shuffle_mb_written": 12, "local_mb_read": 0, "remote_mb_read": 0, "has_fetch": false, "input_read_method": "Hadoop"}

{"job_id": 1, "stage_id": 0, "start_time": 90, "finish_time": 250, "executor_id": "exec-2", "compute_monotask_millis": 120, "disk_monotask_millis": 10, "input_mb": 64, "shuffle_mb_written": 12, "local_mb_read": 0, "remote_mb_read": 0, "has_fetch": false}
{"job_ids": [1, 2], "stage_id": 1, "start_time": 320, "finish_time": 400, "executor_id": "exec-1", "compute_monotask_millis": 60, "disk_monotask_millis": 0, "input_mb": 0, "shuffle_mb_written": 0, "local_mb_read": 6, "remote_mb_read": 18, "has_fetch": true, "start_total_cpu_jiffies": 1000, "end_total_cpu_jiffies": 1040}
`

func TestParseJSONTaskRecords(t *testing.T) {
	jobs, err := ParseJSONTaskRecords(strings.NewReader(jsonTaskRecords), DefaultCalibration())
	require.NoError(t, err)

	require.Len(t, jobs, 2)
	require.Contains(t, jobs, 1)
	require.Contains(t, jobs, 2)

	job := jobs[1]
	assert.Equal(t, []int{0, 1}, job.SortedStageIDs())

	mapStage := job.Stages[0]
	require.Len(t, mapStage.Tasks, 2)
	assert.Equal(t, int64(90), mapStage.StartTime)
	assert.Equal(t, "Hadoop", mapStage.InputSource())
	assert.Equal(t, 128.0, mapStage.InputMB())
	assert.Equal(t, 24.0, mapStage.OutputMB())

	reduceStage := job.Stages[1]
	require.Len(t, reduceStage.Tasks, 1)
	assert.Equal(t, 18.0, reduceStage.NetworkMB())
	assert.Equal(t, int64(1040), reduceStage.Tasks[0].EndTotalCPUJiffies)

	// Shared stages get their own task copies.
	require.Len(t, jobs[2].Stages, 1)
	assert.NotSame(t, reduceStage.Tasks[0], jobs[2].Stages[1].Tasks[0])
}

func TestParseJSONTaskRecordsMalformed(t *testing.T) {
	tests := []struct {
		testName string
		line     string
	}{
		{
			testName: "missing_stage",
			line:     `{"job_id": 1, "start_time": 1, "finish_time": 2}`,
		},
		{
			testName: "missing_job",
			line:     `{"stage_id": 1, "start_time": 1, "finish_time": 2}`,
		},
		{
			testName: "bad_job_ids",
			line:     `{"job_ids": ["x"], "stage_id": 1}`,
		},
		{
			testName: "missing_task_field",
			line:     `{"job_id": 1, "stage_id": 1, "start_time": 1, "finish_time": 2, "executor_id": "e"}`,
		},
	}

	for _, test := range tests {
		t.Run(test.testName, func(t *testing.T) {
			_, err := ParseJSONTaskRecords(strings.NewReader(test.line), DefaultCalibration())
			assert.ErrorIs(t, err, ErrMalformedRecord)
			assert.ErrorContains(t, err, "line 1")
		})
	}
}

const csvTaskRecords = `job_ids,stage_id,start_time,finish_time,executor_id,compute_monotask_millis,disk_monotask_millis,input_mb,shuffle_mb_written,local_mb_read,remote_mb_read,has_fetch,input_read_method,start_total_cpu_jiffies,end_total_cpu_jiffies
3;4,0,10,50,exec-1,30,0,16,2,0,0,false,Memory,,
4,1,60,90,exec-2,10,5,0,0,1,3,true,,200,230
`

func TestParseCSVTaskRecords(t *testing.T) {
	jobs, err := ParseCSVTaskRecords(strings.NewReader(csvTaskRecords), DefaultCalibration())
	require.NoError(t, err)

	require.Len(t, jobs, 2)
	assert.Equal(t, []int{0}, jobs[3].SortedStageIDs())
	assert.Equal(t, []int{0, 1}, jobs[4].SortedStageIDs())

	task := jobs[4].Stages[1].Tasks[0]
	assert.Equal(t, "exec-2", task.ExecutorID)
	assert.True(t, task.HasFetch)
	assert.Equal(t, 3.0, task.RemoteMBRead)
	assert.Equal(t, int64(230), task.EndTotalCPUJiffies)

	first := jobs[3].Stages[0].Tasks[0]
	assert.Equal(t, "Memory", first.InputReadMethod)
	assert.Equal(t, int64(0), first.StartTotalCPUJiffies)
}

func TestParseCSVTaskRecordsMalformed(t *testing.T) {
	records := "job_id,stage_id,start_time,finish_time,executor_id\n1,0,10,50,exec-1\n"

	_, err := ParseCSVTaskRecords(strings.NewReader(records), DefaultCalibration())
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.ErrorContains(t, err, "row 2")
}

func TestEventLogParser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(path, []byte(jsonTaskRecords), 0644))

	jobs, err := NewEventLogParser(path, common.JSONEventLog, DefaultCalibration()).Parse()
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	_, err = NewEventLogParser(path, "xml", DefaultCalibration()).Parse()
	assert.Error(t, err)

	_, err = NewEventLogParser(filepath.Join(dir, "missing.json"), common.JSONEventLog, DefaultCalibration()).Parse()
	assert.Error(t, err)
}
