package metric

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/eth-easl/idealtime/pkg/common"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Exporter collects report rows of one analysis run and writes them out as CSV.
type Exporter struct {
	mutex        sync.Mutex
	runID        string
	stageRecords []common.StageRecord
	jobRecords   []common.JobRecord
}

func NewExporter() *Exporter {
	return &Exporter{
		runID:        uuid.New().String(),
		stageRecords: []common.StageRecord{},
		jobRecords:   []common.JobRecord{},
	}
}

func (ep *Exporter) RunID() string {
	return ep.runID
}

func (ep *Exporter) ReportStage(record common.StageRecord) {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()

	record.RunID = ep.runID
	ep.stageRecords = append(ep.stageRecords, record)
}

func (ep *Exporter) ReportJob(record common.JobRecord) {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()

	record.RunID = ep.runID
	ep.jobRecords = append(ep.jobRecords, record)
}

func (ep *Exporter) GetStageRecordLen() int {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()

	return len(ep.stageRecords)
}

func (ep *Exporter) GetJobRecordLen() int {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()

	return len(ep.jobRecords)
}

func (ep *Exporter) sortRecords() {
	sort.SliceStable(ep.stageRecords, func(i, j int) bool {
		if ep.stageRecords[i].JobID == ep.stageRecords[j].JobID {
			return ep.stageRecords[i].StageID < ep.stageRecords[j].StageID
		}
		return ep.stageRecords[i].JobID < ep.stageRecords[j].JobID
	})
	sort.SliceStable(ep.jobRecords, func(i, j int) bool {
		return ep.jobRecords[i].JobID < ep.jobRecords[j].JobID
	})
}

// FinishAndSave writes <prefix>_stages.csv and <prefix>_jobs.csv.
func (ep *Exporter) FinishAndSave(outputPathPrefix string) error {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()

	ep.sortRecords()

	stageFileName := outputPathPrefix + "_stages.csv"
	if err := marshalFile(&ep.stageRecords, stageFileName); err != nil {
		return err
	}

	jobFileName := outputPathPrefix + "_jobs.csv"
	if err := marshalFile(&ep.jobRecords, jobFileName); err != nil {
		return err
	}

	log.Infof("Wrote %d stage and %d job records of run %s", len(ep.stageRecords), len(ep.jobRecords), ep.runID)
	return nil
}

func marshalFile(records interface{}, fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", fileName, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(records, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", fileName, err)
	}
	return nil
}
