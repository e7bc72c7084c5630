package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// cmdSpeaker shells out to a user-configured command for spoken alerts
// (for example `say -r $(echo "$ALERT_RATE*200" | bc) "$ALERT_TEXT"` on
// macOS, or an espeak pipeline on Linux). The alert text and voice
// parameters are exposed as environment variables.
type cmdSpeaker struct {
	command string
	logger  zerolog.Logger
}

func newCmdSpeaker(command string, logger zerolog.Logger) *cmdSpeaker {
	return &cmdSpeaker{command: command, logger: logger}
}

func (s *cmdSpeaker) Speak(text string, rate, pitch float64) error {
	if strings.TrimSpace(s.command) == "" {
		s.logger.Info().Str("text", text).Msg("spoken alert")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-lc", s.command)
	cmd.Env = append(cmd.Environ(),
		"ALERT_TEXT="+text,
		fmt.Sprintf("ALERT_RATE=%.2f", rate),
		fmt.Sprintf("ALERT_PITCH=%.2f", pitch),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("speaker command: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// logHaptics stands in for a vibration motor on desktop hosts. The
// pattern alternates buzz and pause durations in milliseconds.
type logHaptics struct {
	logger zerolog.Logger
}

func newLogHaptics(logger zerolog.Logger) *logHaptics {
	return &logHaptics{logger: logger}
}

func (h *logHaptics) Vibrate(pattern []int) error {
	h.logger.Info().Ints("pattern_ms", pattern).Msg("haptic alert")
	return nil
}
