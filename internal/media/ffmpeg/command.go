package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"storydub/internal/logging"
	"storydub/internal/services"
)

var commandContext = exec.CommandContext

const outputTailBytes = 800

// Option configures Audio and Renderer.
type Option func(*command)

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *command) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type command struct {
	binary string
	logger *slog.Logger
}

func newCommand(binary string, opts []Option) command {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	c := command{binary: binary, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "ffmpeg")
	return c
}

// run executes ffmpeg with args, overwriting outputs and keeping the log
// quiet unless something fails.
func (c command) run(ctx context.Context, op string, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	c.logger.Debug("ffmpeg command",
		logging.String("op", op),
		logging.String("args", strings.Join(full, " ")),
	)
	cmd := commandContext(ctx, c.binary, full...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrConfiguration, "", op, "ffmpeg unavailable", err)
	}
	return services.Wrap(services.ErrExternalTool, "", op, tail(output), err)
}

func tail(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > outputTailBytes {
		text = "..." + text[len(text)-outputTailBytes:]
	}
	return text
}

func seconds(value float64) string {
	return fmt.Sprintf("%.3f", value)
}

// partialPath returns the temporary path an output is written to before
// being renamed into place. The extension is kept so ffmpeg can infer the
// container.
func partialPath(path string) string {
	ext := ""
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		ext = path[i:]
		path = path[:i]
	}
	return path + ".partial" + ext
}

func commit(op, partial, final string) error {
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return services.Wrap(services.ErrExternalTool, "", op, "finalize output", err)
	}
	return nil
}
