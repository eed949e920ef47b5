package definition

import (
	"regexp"
	"strings"

	"github.com/waabox/pipedeck/internal/domain"
)

var (
	providerPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	refPattern      = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	namePattern     = regexp.MustCompile(`^[^\s]+$`)
)

// builder accumulates stages for both front ends and enforces the rules they share.
type builder struct {
	def       domain.PipelineDefinition
	stageLine int
	stages    map[string]bool
	jobs      map[string]bool
}

func newBuilder(name string) *builder {
	return &builder{
		def:    domain.PipelineDefinition{Name: name},
		stages: make(map[string]bool),
		jobs:   make(map[string]bool),
	}
}

func (b *builder) startStage(line int, name string, continueOnFailure bool) error {
	if err := b.closeStage(); err != nil {
		return err
	}
	if !namePattern.MatchString(name) {
		return errorf(line, name, "invalid stage name")
	}
	if b.stages[name] {
		return errorf(line, name, "duplicate stage")
	}
	b.stages[name] = true
	b.stageLine = line
	b.def.Stages = append(b.def.Stages, domain.Stage{
		Name:                     name,
		ContinueOnPartialFailure: continueOnFailure,
	})
	return nil
}

func (b *builder) addJob(line int, job domain.JobTemplate) error {
	if len(b.def.Stages) == 0 {
		return errorf(line, job.Reference(), "job declared outside of a stage")
	}
	if job.Name == "" {
		job.Name = job.Target
	}
	if b.jobs[job.Name] {
		return errorf(line, job.Name, "duplicate job name")
	}
	b.jobs[job.Name] = true
	last := &b.def.Stages[len(b.def.Stages)-1]
	last.Jobs = append(last.Jobs, job)
	return nil
}

func (b *builder) closeStage() error {
	if n := len(b.def.Stages); n > 0 && len(b.def.Stages[n-1].Jobs) == 0 {
		return errorf(b.stageLine, b.def.Stages[n-1].Name, "stage has no jobs")
	}
	return nil
}

func (b *builder) finish() (domain.PipelineDefinition, error) {
	if err := b.closeStage(); err != nil {
		return domain.PipelineDefinition{}, err
	}
	return b.def, nil
}

// parseReference splits "provider:target[@ref]".
func parseReference(line int, s string) (domain.JobTemplate, error) {
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return domain.JobTemplate{}, errorf(line, s, "malformed job reference, want provider:target")
	}
	provider := s[:idx]
	if !providerPattern.MatchString(provider) {
		return domain.JobTemplate{}, errorf(line, provider, "invalid provider name")
	}
	target := s[idx+1:]
	var ref string
	if at := strings.LastIndex(target, "@"); at > 0 && refPattern.MatchString(target[at+1:]) {
		target, ref = target[:at], target[at+1:]
	}
	if strings.TrimSpace(target) == "" {
		return domain.JobTemplate{}, errorf(line, s, "malformed job reference, empty target")
	}
	return domain.JobTemplate{Provider: provider, Target: target, Ref: ref}, nil
}
