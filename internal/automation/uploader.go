package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/crawlpost/internal/env"
	"github.com/loykin/crawlpost/internal/publish"
)

// CommandUploader is a publish.Uploader that runs an external command with
// the task as JSON on stdin.
type CommandUploader struct {
	Platform string
	Cmd      Command
	Env      *env.Env
	Grace    time.Duration
	Logger   *slog.Logger
}

func (u *CommandUploader) Upload(ctx context.Context, t publish.Task) error {
	logger := u.Logger
	if logger == nil {
		logger = slog.Default()
	}
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	spec := u.Cmd.spec("upload-"+u.Platform, u.Env, "CRAWLPOST_TASK_ID="+t.ID)
	spec.Stdin = bytes.NewReader(body)
	out := lineSink(func(s string) { logger.Info("uploader", "task", t.ID, "platform", u.Platform, "line", s) })
	errOut := lineSink(func(s string) { logger.Warn("uploader stderr", "task", t.ID, "platform", u.Platform, "line", s) })
	spec.Stdout, spec.Stderr = out, errOut
	defer out.Flush()
	defer errOut.Flush()

	grace := u.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	return run(ctx, spec, grace)
}

// Uploaders builds one CommandUploader per configured platform.
func Uploaders(cmds map[string]Command, base *env.Env, logger *slog.Logger) map[string]publish.Uploader {
	out := make(map[string]publish.Uploader, len(cmds))
	for p, c := range cmds {
		if c.Command == "" {
			continue
		}
		out[p] = &CommandUploader{Platform: p, Cmd: c, Env: base, Logger: logger}
	}
	return out
}
