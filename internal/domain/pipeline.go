package domain

// Stage is an ordered group of jobs triggered together. Stages run strictly in sequence.
type Stage struct {
	Name string
	Jobs []JobTemplate
	// ContinueOnPartialFailure lets the pipeline proceed to the next stage even when
	// this stage aggregates to StatusFailed.
	ContinueOnPartialFailure bool
}

// PipelineDefinition is the parsed, immutable plan of a pipeline.
type PipelineDefinition struct {
	Name   string
	Stages []Stage
}

// JobCount returns the number of job templates across all stages.
func (d PipelineDefinition) JobCount() int {
	n := 0
	for _, s := range d.Stages {
		n += len(s.Jobs)
	}
	return n
}
