package database

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/semmidev/pgvault/internal/domain"
)

// CommandRunner runs an external tool and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, command string, env []string, args ...string) (string, error)
}

// Executor runs commands found on PATH with the process environment plus env.
type Executor struct {
	logger domain.Logger
}

func NewExecutor(logger domain.Logger) *Executor {
	return &Executor{logger: logger}
}

func (e *Executor) Run(ctx context.Context, command string, env []string, args ...string) (string, error) {
	commandWithPath, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("unable to find command %s in path: %w", command, err)
	}

	e.logger.Infof("Running %s %s", commandWithPath, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, commandWithPath, args...)
	cmd.Env = append(os.Environ(), env...)

	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}
