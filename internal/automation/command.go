// Package automation drives the external browser-automation scripts that
// perform logins and uploads.
package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/crawlpost/internal/env"
	"github.com/loykin/crawlpost/internal/process"
)

const defaultGrace = 5 * time.Second

// Command is one configured external command.
type Command struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	WorkDir string   `mapstructure:"work_dir"`
	Env     []string `mapstructure:"env"`
}

func (c Command) spec(name string, base *env.Env, extra ...string) process.Spec {
	if base == nil {
		base = env.New()
	}
	return process.Spec{
		Name:    name,
		Command: c.Command,
		Args:    append([]string(nil), c.Args...),
		WorkDir: c.WorkDir,
		Env:     base.Merge(append(append([]string(nil), c.Env...), extra...)),
	}
}

// run starts spec and waits for it. When ctx ends first the process group
// is terminated and ctx's error is returned.
func run(ctx context.Context, spec process.Spec, grace time.Duration) error {
	p, err := process.Start(spec)
	if err != nil {
		return fmt.Errorf("start %s: %w", spec.Name, err)
	}
	select {
	case <-p.Done():
	case <-ctx.Done():
		_ = p.Terminate(grace)
		<-p.Done()
		return ctx.Err()
	}
	if err := p.ExitErr(); err != nil {
		return fmt.Errorf("%s: %w", spec.Name, err)
	}
	return nil
}

// lineSink forwards each trimmed output line to fn.
func lineSink(fn func(string)) *process.LineWriter {
	return process.NewLineWriter(func(l string) { fn(strings.TrimSpace(l)) })
}
