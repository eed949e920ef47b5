package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
)

const tokenCommandTimeout = 30 * time.Second

// CommandTokenSource returns a refresh function that runs command (split
// with shell quoting rules, not passed to a shell) and uses its trimmed
// stdout as the new token. Typical commands are "gh auth token" or
// "glab auth status -t".
func CommandTokenSource(command string) (func() (string, error), error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing token command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("token command is empty")
	}
	return func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), tokenCommandTimeout)
		defer cancel()

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return "", fmt.Errorf("token command %s: %w: %s", args[0], err, msg)
			}
			return "", fmt.Errorf("token command %s: %w", args[0], err)
		}
		token := strings.TrimSpace(stdout.String())
		if token == "" {
			return "", fmt.Errorf("token command %s printed no token", args[0])
		}
		return token, nil
	}, nil
}
