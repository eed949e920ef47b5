package definition

import (
	"fmt"

	"github.com/waabox/pipedeck/internal/domain"
	"gopkg.in/yaml.v3"
)

type yamlStage struct {
	Name              string      `yaml:"name"`
	ContinueOnFailure bool        `yaml:"continue_on_failure"`
	Jobs              []yaml.Node `yaml:"jobs"`
}

type yamlJob struct {
	Uses string            `yaml:"uses"`
	Name string            `yaml:"name"`
	With map[string]string `yaml:"with"`
}

// ParseYAML parses the YAML front end:
//
//	name: release
//	stages:
//	  - name: build
//	    continue_on_failure: false
//	    jobs:
//	      - uses: github:acme/api/ci.yml@main
//	        name: api-ci
//	        with: { target: linux }
//
// The same validation rules as the line grammar apply. Errors carry YAML line numbers.
func ParseYAML(data []byte) (domain.PipelineDefinition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.PipelineDefinition{}, &ParseError{Line: yamlErrorLine(err), Msg: err.Error()}
	}
	if len(doc.Content) == 0 {
		return domain.PipelineDefinition{}, nil
	}
	root := doc.Content[0]
	if err := checkKeys(root, "name", "stages"); err != nil {
		return domain.PipelineDefinition{}, err
	}
	var top struct {
		Name   string      `yaml:"name"`
		Stages []yaml.Node `yaml:"stages"`
	}
	if err := root.Decode(&top); err != nil {
		return domain.PipelineDefinition{}, &ParseError{Line: root.Line, Msg: err.Error()}
	}

	b := newBuilder(top.Name)
	for i := range top.Stages {
		node := &top.Stages[i]
		if err := checkKeys(node, "name", "continue_on_failure", "jobs"); err != nil {
			return domain.PipelineDefinition{}, err
		}
		var st yamlStage
		if err := node.Decode(&st); err != nil {
			return domain.PipelineDefinition{}, &ParseError{Line: node.Line, Msg: err.Error()}
		}
		if st.Name == "" {
			return domain.PipelineDefinition{}, errorf(node.Line, "", "stage requires a name")
		}
		if err := b.startStage(node.Line, st.Name, st.ContinueOnFailure); err != nil {
			return domain.PipelineDefinition{}, err
		}
		for j := range st.Jobs {
			if err := addYAMLJob(b, &st.Jobs[j]); err != nil {
				return domain.PipelineDefinition{}, err
			}
		}
	}
	return b.finish()
}

func addYAMLJob(b *builder, node *yaml.Node) error {
	if err := checkKeys(node, "uses", "name", "with"); err != nil {
		return err
	}
	var yj yamlJob
	if err := node.Decode(&yj); err != nil {
		return &ParseError{Line: node.Line, Msg: err.Error()}
	}
	if yj.Uses == "" {
		return errorf(node.Line, "", "job requires a uses reference")
	}
	job, err := parseReference(node.Line, yj.Uses)
	if err != nil {
		return err
	}
	if yj.Name != "" && !namePattern.MatchString(yj.Name) {
		return errorf(node.Line, yj.Name, "invalid job name")
	}
	job.Name = yj.Name
	if len(yj.With) > 0 {
		job.Params = yj.With
	}
	return b.addJob(node.Line, job)
}

// checkKeys rejects mapping keys outside allowed, the YAML equivalent of an unknown directive.
func checkKeys(node *yaml.Node, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return errorf(node.Line, node.Value, "expected a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		known := false
		for _, a := range allowed {
			if key.Value == a {
				known = true
				break
			}
		}
		if !known {
			return errorf(key.Line, key.Value, "unknown directive")
		}
	}
	return nil
}

func yamlErrorLine(err error) int {
	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
		return line
	}
	return 0
}
