package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/crawlpost/internal/env"
	"github.com/loykin/crawlpost/internal/login"
)

// CommandFlow is a login.Flow backed by an external command. The account
// name is appended as the last argument and exported as CRAWLPOST_ACCOUNT.
// Every stdout line becomes a progress message; stderr is only logged.
type CommandFlow struct {
	Platform string
	Cmd      Command
	Env      *env.Env
	Grace    time.Duration
	Logger   *slog.Logger
}

func (f *CommandFlow) Login(ctx context.Context, account string, sink login.Sink) error {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spec := f.Cmd.spec("login-"+f.Platform, f.Env,
		"CRAWLPOST_ACCOUNT="+account, "CRAWLPOST_PLATFORM="+f.Platform)
	spec.Args = append(spec.Args, account)

	out := lineSink(sink.Push)
	errOut := lineSink(func(s string) {
		logger.Warn("login command stderr", "platform", f.Platform, "account", account, "line", s)
	})
	spec.Stdout, spec.Stderr = out, errOut
	defer out.Flush()
	defer errOut.Flush()

	grace := f.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	return run(ctx, spec, grace)
}

// Flows builds one CommandFlow per configured platform.
func Flows(cmds map[string]Command, base *env.Env, logger *slog.Logger) map[string]login.Flow {
	out := make(map[string]login.Flow, len(cmds))
	for p, c := range cmds {
		if c.Command == "" {
			continue
		}
		out[p] = &CommandFlow{Platform: p, Cmd: c, Env: base, Logger: logger}
	}
	return out
}
