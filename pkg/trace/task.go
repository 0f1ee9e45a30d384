package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field names of an ingested task record.
const (
	FieldStartTime             = "start_time"
	FieldFinishTime            = "finish_time"
	FieldExecutorID            = "executor_id"
	FieldComputeMonotaskMillis = "compute_monotask_millis"
	FieldDiskMonotaskMillis    = "disk_monotask_millis"
	FieldInputMB               = "input_mb"
	FieldShuffleMBWritten      = "shuffle_mb_written"
	FieldLocalMBRead           = "local_mb_read"
	FieldRemoteMBRead          = "remote_mb_read"
	FieldHasFetch              = "has_fetch"
	FieldInputReadMethod       = "input_read_method"
	FieldStartTotalCPUJiffies  = "start_total_cpu_jiffies"
	FieldEndTotalCPUJiffies    = "end_total_cpu_jiffies"
)

// Defaults for counters that older instrumentation did not emit.
const (
	DefaultInputReadMethod      = ""
	DefaultStartTotalCPUJiffies = 0
	DefaultEndTotalCPUJiffies   = 0
)

var ErrMalformedRecord = errors.New("malformed task record")

type MalformedRecordError struct {
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%v: field %q %s", ErrMalformedRecord, e.Field, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// Record is one ingested task-completion event. Values may be JSON-decoded (float64,
// json.Number, bool) or raw strings as read from CSV; an empty string counts as absent.
type Record map[string]interface{}

// Task is one measured unit of work. Times are in milliseconds and volumes in megabytes.
type Task struct {
	StartTime  int64
	FinishTime int64
	ExecutorID string

	ComputeMonotaskMillis float64
	DiskMonotaskMillis    float64

	InputMB          float64
	ShuffleMBWritten float64
	LocalMBRead      float64
	RemoteMBRead     float64

	HasFetch        bool
	InputReadMethod string

	StartTotalCPUJiffies int64
	EndTotalCPUJiffies   int64
}

func (t *Task) Runtime() int64 {
	return t.FinishTime - t.StartTime
}

func NewTask(record Record) (*Task, error) {
	d := &recordDecoder{record: record}

	task := &Task{
		StartTime:  d.requiredInt64(FieldStartTime),
		FinishTime: d.requiredInt64(FieldFinishTime),
		ExecutorID: d.requiredString(FieldExecutorID),

		ComputeMonotaskMillis: d.requiredFloat(FieldComputeMonotaskMillis),
		DiskMonotaskMillis:    d.requiredFloat(FieldDiskMonotaskMillis),

		InputMB:          d.requiredFloat(FieldInputMB),
		ShuffleMBWritten: d.requiredFloat(FieldShuffleMBWritten),
		LocalMBRead:      d.requiredFloat(FieldLocalMBRead),
		RemoteMBRead:     d.requiredFloat(FieldRemoteMBRead),

		HasFetch:        d.requiredBool(FieldHasFetch),
		InputReadMethod: d.optionalString(FieldInputReadMethod, DefaultInputReadMethod),

		StartTotalCPUJiffies: d.optionalInt64(FieldStartTotalCPUJiffies, DefaultStartTotalCPUJiffies),
		EndTotalCPUJiffies:   d.optionalInt64(FieldEndTotalCPUJiffies, DefaultEndTotalCPUJiffies),
	}
	if d.err != nil {
		return nil, d.err
	}

	if err := task.validate(); err != nil {
		return nil, err
	}

	return task, nil
}

func (t *Task) validate() error {
	if t.FinishTime < t.StartTime {
		return &MalformedRecordError{Field: FieldFinishTime, Reason: fmt.Sprintf("(%d) precedes start time (%d)", t.FinishTime, t.StartTime)}
	}
	if t.EndTotalCPUJiffies < t.StartTotalCPUJiffies {
		return &MalformedRecordError{Field: FieldEndTotalCPUJiffies, Reason: "is smaller than the start counter"}
	}

	nonNegative := []struct {
		field string
		value float64
	}{
		{FieldComputeMonotaskMillis, t.ComputeMonotaskMillis},
		{FieldDiskMonotaskMillis, t.DiskMonotaskMillis},
		{FieldInputMB, t.InputMB},
		{FieldShuffleMBWritten, t.ShuffleMBWritten},
		{FieldLocalMBRead, t.LocalMBRead},
		{FieldRemoteMBRead, t.RemoteMBRead},
	}
	for _, nn := range nonNegative {
		if nn.value < 0 {
			return &MalformedRecordError{Field: nn.field, Reason: fmt.Sprintf("is negative (%v)", nn.value)}
		}
	}

	return nil
}

// recordDecoder keeps the first error so NewTask can read every field without checking each one.
type recordDecoder struct {
	record Record
	err    error
}

func (d *recordDecoder) lookup(field string, required bool) (interface{}, bool) {
	if d.err != nil {
		return nil, false
	}

	value, ok := d.record[field]
	if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
		ok = false
	}
	if !ok || value == nil {
		if required {
			d.err = &MalformedRecordError{Field: field, Reason: "is missing"}
		}
		return nil, false
	}

	return value, true
}

func (d *recordDecoder) fail(field string, value interface{}, kind string) {
	d.err = &MalformedRecordError{Field: field, Reason: fmt.Sprintf("is not %s (%v)", kind, value)}
}

func (d *recordDecoder) readFloat(field string, required bool, def float64) float64 {
	value, ok := d.lookup(field, required)
	if !ok {
		return def
	}

	f, err := toFloat(value)
	if err != nil {
		d.fail(field, value, "a number")
		return def
	}
	return f
}

func (d *recordDecoder) readInt64(field string, required bool, def int64) int64 {
	value, ok := d.lookup(field, required)
	if !ok {
		return def
	}

	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}

	f, err := toFloat(value)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		d.fail(field, value, "an integer")
		return def
	}
	return int64(f)
}

func (d *recordDecoder) readString(field string, required bool, def string) string {
	value, ok := d.lookup(field, required)
	if !ok {
		return def
	}

	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		d.fail(field, value, "a string")
		return def
	}
}

func (d *recordDecoder) readBool(field string, required bool, def bool) bool {
	value, ok := d.lookup(field, required)
	if !ok {
		return def
	}

	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			d.fail(field, value, "a boolean")
			return def
		}
		return b
	default:
		d.fail(field, value, "a boolean")
		return def
	}
}

func (d *recordDecoder) requiredFloat(field string) float64 { return d.readFloat(field, true, 0) }
func (d *recordDecoder) requiredInt64(field string) int64   { return d.readInt64(field, true, 0) }
func (d *recordDecoder) requiredString(field string) string { return d.readString(field, true, "") }
func (d *recordDecoder) requiredBool(field string) bool     { return d.readBool(field, true, false) }

func (d *recordDecoder) optionalInt64(field string, def int64) int64 {
	return d.readInt64(field, false, def)
}

func (d *recordDecoder) optionalString(field string, def string) string {
	return d.readString(field, false, def)
}

// toFloat rejects NaN and infinities, which would otherwise propagate into every ideal time.
func toFloat(value interface{}) (float64, error) {
	f, err := parseFloat(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}

func parseFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}
