package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/waabox/pipedeck/internal/definition"
	"github.com/waabox/pipedeck/internal/domain"
	"github.com/waabox/pipedeck/internal/logging"
)

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct {
	Definition string `arg:"" type:"existingfile" help:"Pipeline definition to check"`
}

func (v *ValidateCmd) Run(root *CLI) error {
	def, err := definition.ParseFile(v.Definition)
	if err != nil {
		return err
	}
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg, domain.Repository{}, logging.Discard())
	if err != nil {
		return err
	}
	if err := registry.Check(def); err != nil {
		return err
	}
	printPlan(os.Stdout, def)
	return nil
}

// printPlan writes one line per stage and an indented line per job.
func printPlan(w io.Writer, def domain.PipelineDefinition) {
	fmt.Fprintf(w, "Pipeline: %s (%d stages, %d jobs)\n", def.Name, len(def.Stages), def.JobCount())
	for i, s := range def.Stages {
		modifier := ""
		if s.ContinueOnPartialFailure {
			modifier = " [continue-on-failure]"
		}
		fmt.Fprintf(w, "%d. %s%s\n", i+1, s.Name, modifier)
		for _, j := range s.Jobs {
			line := fmt.Sprintf("     %-20s %s", j.Name, j.Reference())
			for _, k := range j.ParamKeys() {
				line += fmt.Sprintf(" %s=%s", k, j.Params[k])
			}
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
	}
}
