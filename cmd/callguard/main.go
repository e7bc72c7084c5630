package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shestorm/callguard/internal/config"
	"github.com/shestorm/callguard/internal/dotenv"
	"github.com/shestorm/callguard/pkg/alert"
	"github.com/shestorm/callguard/pkg/archive"
	"github.com/shestorm/callguard/pkg/live"
	"github.com/shestorm/callguard/pkg/monitor"
)

func main() {
	_ = dotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store *archive.Store
	if cfg.DatabaseURL != "" {
		store, err = archive.Open(ctx, cfg.DatabaseURL, cfg.DatabaseWait, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("open call archive")
		}
		defer store.Close()
	}

	player, err := newSpeakerPlayer()
	if err != nil {
		log.Fatal().Err(err).Msg("open speaker")
	}
	defer player.Close()

	dispatcher := alert.NewDispatcher(
		newLogHaptics(logger),
		newCmdSpeaker(cfg.SpeakerCommand, logger),
		alert.WithLogger(logger),
	)

	deps := monitor.Deps{
		Dial: func(ctx context.Context, liveCfg live.Config) (monitor.Upstream, error) {
			return live.Dial(ctx, liveCfg)
		},
		Capture:    newMicCapture(),
		Player:     player,
		Dispatcher: dispatcher,
	}
	if store != nil {
		deps.Sink = store
	}

	mon := monitor.New(monitor.Config{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Endpoint:  cfg.Endpoint,
		VoiceName: cfg.VoiceName,
		Logger:    logger,
	}, deps)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		stopSession(mon, cfg.RecordingDir, logger)
		cancel()
		os.Exit(0)
	}()

	fmt.Println("callguard — live call monitor")
	fmt.Println("commands: start, stop, rerecord, status, risk, transcript, summary, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "":
		case "start":
			if err := mon.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("start monitoring")
				continue
			}
			fmt.Printf("monitoring session %s\n", mon.SessionID())
		case "stop":
			stopSession(mon, cfg.RecordingDir, logger)
		case "rerecord":
			if err := mon.RestartRecording(); err != nil {
				logger.Error().Err(err).Msg("restart recording")
				continue
			}
			fmt.Println("recording restarted")
		case "status":
			printStatus(mon)
		case "risk":
			printRisk(mon)
		case "transcript":
			printTranscript(mon)
		case "summary":
			printSummary(ctx, store)
		case "quit", "exit":
			stopSession(mon, cfg.RecordingDir, logger)
			return
		default:
			fmt.Println("unknown command")
		}
	}

	stopSession(mon, cfg.RecordingDir, logger)
}

func stopSession(mon *monitor.Monitor, recordingDir string, logger zerolog.Logger) {
	if mon.State() == monitor.StateIdle {
		return
	}
	sessionID := mon.SessionID()
	if err := mon.Stop(); err != nil {
		logger.Error().Err(err).Msg("stop monitoring")
		return
	}

	path := filepath.Join(recordingDir, fmt.Sprintf("call-%s.wav", sessionID))
	if err := os.WriteFile(path, mon.Recording(), 0o644); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("save recording")
		return
	}
	fmt.Printf("session ended, recording saved to %s\n", path)
}

func printStatus(mon *monitor.Monitor) {
	snap := mon.Snapshot()
	fmt.Printf("state: %s\n", snap.State)
	if snap.State != monitor.StateIdle {
		fmt.Printf("session: %s  elapsed: %s\n", snap.SessionID, snap.Elapsed.Round(time.Second))
	}
	if snap.Escalated {
		fmt.Println("!! DANGER: likely scam call, consider hanging up !!")
	}
}

func printRisk(mon *monitor.Monitor) {
	risk := mon.Risk()
	fmt.Printf("score: %d", risk.Score)
	if risk.Danger() {
		fmt.Print(" [DANGER]")
	}
	fmt.Println()
	fmt.Printf("impersonation=%t urgency=%t financial=%t manipulation=%t\n",
		risk.Signals.Impersonation, risk.Signals.Urgency,
		risk.Signals.Financial, risk.Signals.Manipulation)
}

func printTranscript(mon *monitor.Monitor) {
	entries := mon.Transcript()
	if len(entries) == 0 {
		fmt.Println("transcript is empty")
		return
	}
	for _, e := range entries {
		fmt.Printf("[%s] ", e.Clock())
		for _, seg := range mon.HighlightEntry(e) {
			if seg.Risk {
				fmt.Printf("<<%s>>", seg.Text)
			} else {
				fmt.Print(seg.Text)
			}
		}
		fmt.Println()
	}
}

func printSummary(ctx context.Context, store *archive.Store) {
	if store == nil {
		fmt.Println("archive disabled (set CALLGUARD_DATABASE_URL)")
		return
	}
	summaryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	summary, err := store.Summarize(summaryCtx)
	if err != nil {
		fmt.Printf("summary unavailable: %v\n", err)
		return
	}
	fmt.Printf("calls: %d  alerts: %d  avg risk: %.2f\n",
		summary.TotalCalls, summary.TotalAlerts, summary.AverageRiskScore)

	calls, err := store.RecentCalls(summaryCtx, 10)
	if err != nil {
		return
	}
	for _, c := range calls {
		fmt.Printf("  %s  score=%.0f  status=%s  %s\n",
			c.SessionID, c.RiskScore, c.Status, c.CreatedAt.Format(time.RFC3339))
	}
}
