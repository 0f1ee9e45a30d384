package trace

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eth-easl/idealtime/pkg/common"
)

var (
	ErrEmptyStage    = errors.New("stage has no tasks")
	ErrZeroIdealSpan = errors.New("executors were never busy")
)

// Stage is one execution phase of a job. Tasks are kept in arrival order and never re-sorted.
type Stage struct {
	StartTime int64
	Tasks     []*Task

	calibration Calibration
}

func NewStage(calibration Calibration) *Stage {
	return &Stage{
		StartTime:   -1,
		calibration: calibration,
	}
}

// AddEvent builds a task from record and appends it, keeping StartTime at the earliest task start.
func (s *Stage) AddEvent(record Record) error {
	task, err := NewTask(record)
	if err != nil {
		return err
	}

	if len(s.Tasks) == 0 {
		s.StartTime = task.StartTime
	} else {
		s.StartTime = common.MinOf(s.StartTime, task.StartTime)
	}

	s.Tasks = append(s.Tasks, task)
	return nil
}

func (s *Stage) FinishTime() (int64, error) {
	if len(s.Tasks) == 0 {
		return 0, ErrEmptyStage
	}

	finish := s.Tasks[0].FinishTime
	for _, t := range s.Tasks[1:] {
		finish = common.MaxOf(finish, t.FinishTime)
	}
	return finish, nil
}

func (s *Stage) Runtime() (int64, error) {
	finish, err := s.FinishTime()
	if err != nil {
		return 0, err
	}
	return finish - s.StartTime, nil
}

// TotalRuntime sums task runtimes, so overlapping tasks are counted more than once.
func (s *Stage) TotalRuntime() int64 {
	var total int64
	for _, t := range s.Tasks {
		total += t.Runtime()
	}
	return total
}

func (s *Stage) AverageTaskRuntime() (float64, error) {
	if len(s.Tasks) == 0 {
		return 0, ErrEmptyStage
	}
	return float64(s.TotalRuntime()) / float64(len(s.Tasks)), nil
}

func (s *Stage) MaxTaskRuntime() (int64, error) {
	longest, err := s.LongestTask()
	if err != nil {
		return 0, err
	}
	return longest.Runtime(), nil
}

// LongestTask returns the first task with the largest runtime.
func (s *Stage) LongestTask() (*Task, error) {
	if len(s.Tasks) == 0 {
		return nil, ErrEmptyStage
	}

	longest := s.Tasks[0]
	for _, t := range s.Tasks[1:] {
		if t.Runtime() > longest.Runtime() {
			longest = t
		}
	}
	return longest, nil
}

// InputMB adds shuffle input (local and remote) to the primary input of all tasks.
func (s *Stage) InputMB() float64 {
	var total float64
	for _, t := range s.Tasks {
		if t.HasFetch {
			total += t.RemoteMBRead + t.LocalMBRead
		}
	}
	for _, t := range s.Tasks {
		total += t.InputMB
	}
	return total
}

// OutputMB is only meaningful for stages that write shuffle output.
func (s *Stage) OutputMB() float64 {
	var total float64
	for _, t := range s.Tasks {
		total += t.ShuffleMBWritten
	}
	return total
}

// NetworkMB is the shuffle input that crossed the network.
func (s *Stage) NetworkMB() float64 {
	var total float64
	for _, t := range s.Tasks {
		if t.HasFetch {
			total += t.RemoteMBRead
		}
	}
	return total
}

func (s *Stage) HasShuffleRead() bool {
	var total float64
	for _, t := range s.Tasks {
		if t.HasFetch {
			total += t.RemoteMBRead + t.LocalMBRead
		}
	}
	return total > 0
}

// InputSource reports where the stage's input came from, judged by its first task.
func (s *Stage) InputSource() string {
	if len(s.Tasks) == 0 {
		return ""
	}
	if s.Tasks[0].HasFetch {
		return common.ShuffleInput
	}
	return s.Tasks[0].InputReadMethod
}

// ExecutorIDToTasks groups tasks by executor, preserving arrival order within each group.
func (s *Stage) ExecutorIDToTasks() map[string][]*Task {
	executorIDToTasks := make(map[string][]*Task)
	for _, t := range s.Tasks {
		executorIDToTasks[t.ExecutorID] = append(executorIDToTasks[t.ExecutorID], t)
	}
	return executorIDToTasks
}

// ExecutorIDs returns the distinct executor ids in ascending order.
func (s *Stage) ExecutorIDs() []string {
	return common.SortedKeys(s.ExecutorIDToTasks())
}

func (s *Stage) NumExecutors() int {
	return len(s.ExecutorIDToTasks())
}

// LoadBalancingBadness compares the stage runtime against the per-executor busy span the stage
// would have had if the executors' spans were spread evenly. 1.0 is perfectly balanced.
func (s *Stage) LoadBalancingBadness() (float64, error) {
	runtime, err := s.Runtime()
	if err != nil {
		return 0, err
	}

	executorIDToTasks := s.ExecutorIDToTasks()
	var totalSpan int64
	for _, tasks := range executorIDToTasks {
		minStart, maxFinish := tasks[0].StartTime, tasks[0].FinishTime
		for _, t := range tasks[1:] {
			minStart = common.MinOf(minStart, t.StartTime)
			maxFinish = common.MaxOf(maxFinish, t.FinishTime)
		}
		totalSpan += maxFinish - minStart
	}

	idealSpan := float64(totalSpan) / float64(len(executorIDToTasks))
	if idealSpan == 0 {
		return 0, ErrZeroIdealSpan
	}
	return float64(runtime) / idealSpan, nil
}

// MaxConcurrency is the largest number of tasks running at the same instant. A task finishing
// at t does not overlap one starting at t.
func (s *Stage) MaxConcurrency() int {
	type point struct {
		time  int64
		delta int
	}

	points := make([]point, 0, 2*len(s.Tasks))
	for _, t := range s.Tasks {
		points = append(points, point{t.StartTime, 1}, point{t.FinishTime, -1})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].time == points[j].time {
			return points[i].delta < points[j].delta
		}
		return points[i].time < points[j].time
	})

	current, max := 0, 0
	for _, p := range points {
		current += p.delta
		max = common.MaxOf(max, current)
	}
	return max
}

// Summary describes the stage on one line, followed by the result of each straggler classifier.
func (s *Stage) Summary(classifiers ...StragglerClassifier) (string, error) {
	avg, err := s.AverageTaskRuntime()
	if err != nil {
		return "", err
	}
	maxRuntime, err := s.MaxTaskRuntime()
	if err != nil {
		return "", err
	}
	runtime, err := s.Runtime()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d tasks (avg runtime: %.2f, max runtime: %d) Start: %d, runtime: %d, "+
		"Max concurrency: %d, Input MB: %.2f (from %s), Output MB: %.2f",
		len(s.Tasks), avg, maxRuntime, s.StartTime, runtime,
		s.MaxConcurrency(), s.InputMB(), s.InputSource(), s.OutputMB())

	for _, classifier := range classifiers {
		report, err := classifier.Classify(s)
		if err != nil {
			return "", fmt.Errorf("straggler classifier %s: %w", classifier.Name(), err)
		}
		fmt.Fprintf(&sb, ", %s: %d", classifier.Name(), report.Count)
	}

	return sb.String(), nil
}

// VerboseSummary appends the longest task to Summary.
func (s *Stage) VerboseSummary(classifiers ...StragglerClassifier) (string, error) {
	summary, err := s.Summary(classifiers...)
	if err != nil {
		return "", err
	}
	longest, err := s.LongestTask()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n    Longest Task: %+v", summary, *longest), nil
}
