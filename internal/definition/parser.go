// Package definition turns pipeline definition text into a domain.PipelineDefinition.
//
// The line grammar is:
//
//	# comment
//	stage <name> [continue-on-failure]
//	job <provider>:<target>[@<ref>] [as <name>] [<key>=<value> ...]
//
// Tokens are split shell-style, so quoted words stay together.
package definition

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/waabox/pipedeck/internal/domain"
)

const modifierContinueOnFailure = "continue-on-failure"

// Parse parses line-grammar definition text. It performs no triggering.
// Empty text yields a zero-stage definition.
func Parse(text string) (domain.PipelineDefinition, error) {
	return parseLines("", text)
}

// ParseFile reads and parses the definition at path. Files ending in .yaml or
// .yml use the YAML front end; everything else uses the line grammar. The
// definition is named after the file.
func ParseFile(path string) (domain.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PipelineDefinition{}, fmt.Errorf("reading definition: %w", err)
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		def, err := ParseYAML(data)
		if err != nil {
			return domain.PipelineDefinition{}, err
		}
		if def.Name == "" {
			def.Name = name
		}
		return def, nil
	default:
		return parseLines(name, string(data))
	}
}

func parseLines(name, text string) (domain.PipelineDefinition, error) {
	b := newBuilder(name)
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens, err := shlex.Split(line)
		if err != nil {
			return domain.PipelineDefinition{}, errorf(lineNo, line, "cannot tokenize line (%v)", err)
		}
		if len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case "stage":
			err = parseStage(b, lineNo, tokens[1:])
		case "job":
			err = parseJob(b, lineNo, tokens[1:])
		default:
			err = errorf(lineNo, tokens[0], "unknown directive")
		}
		if err != nil {
			return domain.PipelineDefinition{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.PipelineDefinition{}, fmt.Errorf("reading definition: %w", err)
	}
	return b.finish()
}

func parseStage(b *builder, line int, args []string) error {
	if len(args) == 0 {
		return errorf(line, "", "stage requires a name")
	}
	continueOnFailure := false
	for _, mod := range args[1:] {
		if mod != modifierContinueOnFailure {
			return errorf(line, mod, "unknown stage modifier")
		}
		continueOnFailure = true
	}
	return b.startStage(line, args[0], continueOnFailure)
}

func parseJob(b *builder, line int, args []string) error {
	if len(args) == 0 {
		return errorf(line, "", "job requires a provider:target reference")
	}
	job, err := parseReference(line, args[0])
	if err != nil {
		return err
	}
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "as" {
			if job.Name != "" {
				return errorf(line, arg, "job name given twice")
			}
			if i+1 >= len(args) || !namePattern.MatchString(args[i+1]) {
				return errorf(line, arg, "missing job name after")
			}
			job.Name = args[i+1]
			i++
			continue
		}
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return errorf(line, arg, "malformed parameter, want key=value")
		}
		if job.Params == nil {
			job.Params = make(map[string]string)
		}
		if _, dup := job.Params[key]; dup {
			return errorf(line, key, "duplicate parameter")
		}
		job.Params[key] = value
	}
	return b.addJob(line, job)
}
