package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eth-easl/idealtime/pkg/common"
	"github.com/eth-easl/idealtime/pkg/trace"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type AnalyzerConfiguration struct {
	EventLogPath    string                `json:"EventLogPath" yaml:"EventLogPath"`
	EventLogFormat  common.EventLogFormat `json:"EventLogFormat" yaml:"EventLogFormat"`
	MonitorLogPaths map[string]string     `json:"MonitorLogPaths" yaml:"MonitorLogPaths"`

	OutputPathPrefix string `json:"OutputPathPrefix" yaml:"OutputPathPrefix"`

	CoresPerMachine  int `json:"CoresPerMachine" yaml:"CoresPerMachine"`
	DisksPerMachine  int `json:"DisksPerMachine" yaml:"DisksPerMachine"`
	CoresPerExecutor int `json:"CoresPerExecutor" yaml:"CoresPerExecutor"`

	LinkBandwidthMBps float64  `json:"LinkBandwidthMBps" yaml:"LinkBandwidthMBps"`
	MillisPerJiffy    float64  `json:"MillisPerJiffy" yaml:"MillisPerJiffy"`
	DataDisks         []string `json:"DataDisks" yaml:"DataDisks"`

	NumWarmupJobs        int     `json:"NumWarmupJobs" yaml:"NumWarmupJobs"`
	OutlierThresholdMbps float64 `json:"OutlierThresholdMbps" yaml:"OutlierThresholdMbps"`
}

// ParseConfiguration decodes YAML when path ends in .yaml or .yml and JSON otherwise, then fills
// in defaults and validates the result.
func ParseConfiguration(path string, data []byte) (AnalyzerConfiguration, error) {
	var config AnalyzerConfiguration

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return AnalyzerConfiguration{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return AnalyzerConfiguration{}, err
	}

	return config, nil
}

func ReadConfigurationFile(path string) AnalyzerConfiguration {
	byteValue, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}

	config, err := ParseConfiguration(path, byteValue)
	if err != nil {
		log.Fatal(err)
	}

	return config
}

func (c *AnalyzerConfiguration) applyDefaults() {
	if c.EventLogFormat == "" {
		c.EventLogFormat = common.JSONEventLog
	}
	if c.OutputPathPrefix == "" {
		c.OutputPathPrefix = c.EventLogPath
	}
	if c.CoresPerMachine == 0 {
		c.CoresPerMachine = common.DefaultCoresPerMachine
	}
	if c.CoresPerExecutor == 0 {
		c.CoresPerExecutor = common.DefaultCoresPerExecutor
	}
	if c.LinkBandwidthMBps == 0 {
		c.LinkBandwidthMBps = common.DefaultLinkBandwidthMBps
	}
	if c.MillisPerJiffy == 0 {
		c.MillisPerJiffy = common.DefaultMillisPerJiffy
	}
	if len(c.DataDisks) == 0 {
		c.DataDisks = append([]string(nil), common.DefaultDataDisks...)
	}
	if c.OutlierThresholdMbps == 0 {
		c.OutlierThresholdMbps = common.DefaultOutlierThresholdMbps
	}
}

func (c *AnalyzerConfiguration) Validate() error {
	var errs []error

	if c.EventLogPath == "" {
		errs = append(errs, errors.New("EventLogPath is required"))
	}
	if c.EventLogFormat != common.JSONEventLog && c.EventLogFormat != common.CSVEventLog {
		errs = append(errs, fmt.Errorf("unsupported EventLogFormat %q", c.EventLogFormat))
	}
	if c.CoresPerMachine < 0 {
		errs = append(errs, fmt.Errorf("CoresPerMachine must be positive, got %d", c.CoresPerMachine))
	}
	if c.CoresPerExecutor < 0 {
		errs = append(errs, fmt.Errorf("CoresPerExecutor must be positive, got %d", c.CoresPerExecutor))
	}
	if c.DisksPerMachine < 0 {
		errs = append(errs, fmt.Errorf("DisksPerMachine must not be negative, got %d", c.DisksPerMachine))
	}
	if c.LinkBandwidthMBps < 0 {
		errs = append(errs, fmt.Errorf("LinkBandwidthMBps must be positive, got %v", c.LinkBandwidthMBps))
	}
	if c.MillisPerJiffy < 0 {
		errs = append(errs, fmt.Errorf("MillisPerJiffy must be positive, got %v", c.MillisPerJiffy))
	}
	if c.NumWarmupJobs < 0 {
		errs = append(errs, fmt.Errorf("NumWarmupJobs must not be negative, got %d", c.NumWarmupJobs))
	}

	return errors.Join(errs...)
}

func (c *AnalyzerConfiguration) Calibration() trace.Calibration {
	return trace.Calibration{
		LinkBandwidthMBps: c.LinkBandwidthMBps,
		MillisPerJiffy:    c.MillisPerJiffy,
		DataDisks:         c.DataDisks,
	}
}
