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

package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/eth-easl/idealtime/pkg/common"
	"github.com/gocarina/gocsv"

	log "github.com/sirupsen/logrus"
)

// Fields placing a task record in its job(s) and stage.
const (
	FieldJobID   = "job_id"
	FieldJobIDs  = "job_ids"
	FieldStageID = "stage_id"

	jobIDSeparator = ";"
	maxLineBytes   = 16 * 1024 * 1024
)

// EventLogParser reads pre-flattened task-end records, one per task, into jobs.
type EventLogParser struct {
	Path   string
	Format common.EventLogFormat

	calibration Calibration
}

func NewEventLogParser(path string, format common.EventLogFormat, calibration Calibration) *EventLogParser {
	return &EventLogParser{
		Path:   path,
		Format: format,

		calibration: calibration,
	}
}

func (p *EventLogParser) Parse() (map[int]*Job, error) {
	log.Infof("Parsing task records %s as %s", p.Path, p.Format)

	file, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task records: %w", err)
	}
	defer file.Close()

	var jobs map[int]*Job
	switch p.Format {
	case common.JSONEventLog:
		jobs, err = ParseJSONTaskRecords(file, p.calibration)
	case common.CSVEventLog:
		jobs, err = ParseCSVTaskRecords(file, p.calibration)
	default:
		return nil, fmt.Errorf("unsupported task record format %q", p.Format)
	}
	if err != nil {
		return nil, err
	}

	for _, jobID := range common.SortedKeys(jobs) {
		log.Debugf("Job %d has stages: %v", jobID, jobs[jobID].SortedStageIDs())
	}
	return jobs, nil
}

// ParseJSONTaskRecords reads one JSON object per line. Lines that are not valid JSON are logged
// and skipped; records missing a required field fail the whole parse.
func ParseJSONTaskRecords(r io.Reader, calibration Calibration) (map[int]*Job, error) {
	jobs := make(map[int]*Job)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		decoder := json.NewDecoder(bytes.NewReader(line))
		decoder.UseNumber()

		var record Record
		if err := decoder.Decode(&record); err != nil {
			log.Warnf("Bad data on line %d: %s", lineNumber, line)
			continue
		}

		if err := addRecord(jobs, record, calibration); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task records: %w", err)
	}

	return jobs, nil
}

// ParseCSVTaskRecords reads a CSV file whose header names the record fields. Empty cells are
// treated as absent fields.
func ParseCSVTaskRecords(r io.Reader, calibration Calibration) (map[int]*Job, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read task records: %w", err)
	}

	jobs := make(map[int]*Job)
	for i, row := range rows {
		record := make(Record, len(row))
		for field, value := range row {
			record[strings.TrimSpace(field)] = value
		}

		// Header is row 1.
		if err := addRecord(jobs, record, calibration); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	return jobs, nil
}

func addRecord(jobs map[int]*Job, record Record, calibration Calibration) error {
	d := &recordDecoder{record: record}
	stageID := d.requiredInt64(FieldStageID)
	if d.err != nil {
		return d.err
	}

	jobIDs, err := recordJobIDs(record)
	if err != nil {
		return err
	}

	for _, jobID := range jobIDs {
		job, ok := jobs[jobID]
		if !ok {
			job = NewJob(jobID, calibration)
			jobs[jobID] = job
		}
		if err := job.AddEvent(int(stageID), record); err != nil {
			return err
		}
	}
	return nil
}

// recordJobIDs returns every job that depends on the record's stage. A list under job_ids wins
// over a single job_id.
func recordJobIDs(record Record) ([]int, error) {
	if raw, ok := record[FieldJobIDs]; ok && raw != nil && raw != "" {
		var values []interface{}
		switch v := raw.(type) {
		case []interface{}:
			values = v
		case string:
			for _, part := range strings.Split(v, jobIDSeparator) {
				values = append(values, part)
			}
		default:
			return nil, &MalformedRecordError{Field: FieldJobIDs, Reason: fmt.Sprintf("is not a list (%v)", raw)}
		}

		ids := make([]int, 0, len(values))
		for _, value := range values {
			id, err := toJobID(value)
			if err != nil {
				return nil, &MalformedRecordError{Field: FieldJobIDs, Reason: err.Error()}
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	d := &recordDecoder{record: record}
	id := d.requiredInt64(FieldJobID)
	if d.err != nil {
		return nil, d.err
	}
	return []int{int(id)}, nil
}

func toJobID(value interface{}) (int, error) {
	if s, ok := value.(string); ok {
		id, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("contains a non-integer job id (%q)", s)
		}
		return id, nil
	}

	f, err := toFloat(value)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("contains a non-integer job id (%v)", value)
	}
	return int(f), nil
}
