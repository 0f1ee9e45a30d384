package trace

// StragglerReport is what a classifier found in a stage: how many tasks it flagged and a
// classifier-specific statistic explaining them (e.g. the fraction of slowdown attributed).
type StragglerReport struct {
	Count     int
	Statistic float64
}

// StragglerClassifier flags slow tasks in a stage that share one root cause.
type StragglerClassifier interface {
	Name() string
	Classify(stage *Stage) (StragglerReport, error)
}
