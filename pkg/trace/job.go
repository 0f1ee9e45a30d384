package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/eth-easl/idealtime/pkg/common"
)

var (
	ErrEmptyJob      = errors.New("job has no stages")
	ErrZeroIdealTime = errors.New("ideal time is zero")
)

// Job maps stage ids to the stages of one complete computation.
type Job struct {
	ID     int
	Stages map[int]*Stage

	calibration Calibration
}

func NewJob(id int, calibration Calibration) *Job {
	return &Job{
		ID:          id,
		Stages:      make(map[int]*Stage),
		calibration: calibration,
	}
}

// AddEvent adds the task described by record to the stage, creating the stage on first use.
func (j *Job) AddEvent(stageID int, record Record) error {
	stage, ok := j.Stages[stageID]
	if !ok {
		stage = NewStage(j.calibration)
	}

	if err := stage.AddEvent(record); err != nil {
		return fmt.Errorf("job %d stage %d: %w", j.ID, stageID, err)
	}
	j.Stages[stageID] = stage
	return nil
}

func (j *Job) SortedStageIDs() []int {
	return common.SortedKeys(j.Stages)
}

func (j *Job) AllTasks() []*Task {
	var tasks []*Task
	for _, stageID := range j.SortedStageIDs() {
		tasks = append(tasks, j.Stages[stageID].Tasks...)
	}
	return tasks
}

func (j *Job) StartTime() (int64, error) {
	if len(j.Stages) == 0 {
		return 0, ErrEmptyJob
	}

	ids := j.SortedStageIDs()
	start := j.Stages[ids[0]].StartTime
	for _, id := range ids[1:] {
		start = common.MinOf(start, j.Stages[id].StartTime)
	}
	return start, nil
}

func (j *Job) FinishTime() (int64, error) {
	if len(j.Stages) == 0 {
		return 0, ErrEmptyJob
	}

	var finish int64
	for i, id := range j.SortedStageIDs() {
		stageFinish, err := j.Stages[id].FinishTime()
		if err != nil {
			return 0, fmt.Errorf("stage %d: %w", id, err)
		}
		if i == 0 {
			finish = stageFinish
		}
		finish = common.MaxOf(finish, stageFinish)
	}
	return finish, nil
}

func (j *Job) Runtime() (int64, error) {
	start, err := j.StartTime()
	if err != nil {
		return 0, err
	}
	finish, err := j.FinishTime()
	if err != nil {
		return 0, err
	}
	return finish - start, nil
}

// IdealTime sums the stages' duration-based ideal times, since stages run one after another.
func (j *Job) IdealTime(coresPerMachine, disksPerMachine int, sink io.Writer) (float64, error) {
	if len(j.Stages) == 0 {
		return 0, ErrEmptyJob
	}

	var total float64
	for _, id := range j.SortedStageIDs() {
		ideal, err := j.Stages[id].IdealTime(coresPerMachine, disksPerMachine, sink)
		if err != nil {
			return 0, fmt.Errorf("stage %d: %w", id, err)
		}
		total += ideal
	}
	return total, nil
}

// Inflation is how much longer the job actually took than its ideal time, as a fraction of it.
func Inflation(actualMillis int64, idealMillis float64) (float64, error) {
	if idealMillis == 0 {
		return 0, ErrZeroIdealTime
	}
	return (float64(actualMillis) - idealMillis) / idealMillis, nil
}
