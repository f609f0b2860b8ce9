// Command auralis-voice runs an interactive voice session from the
// terminal: microphone in, assistant speech out, transcripts printed per
// turn.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/auralis-ai/auralis/internal/dotenv"
	"github.com/auralis-ai/auralis/pkg/audio/pulseio"
	"github.com/auralis-ai/auralis/pkg/core/audio"
	"github.com/auralis-ai/auralis/pkg/core/live"
	"github.com/auralis-ai/auralis/pkg/eventlog"
	"github.com/auralis-ai/auralis/pkg/transport/geminilive"
	"github.com/auralis-ai/auralis/pkg/transport/relay"
)

type options struct {
	voice       string
	system      string
	assistantID string
	model       string
	relayURL    string
	relayToken  string
	mic         string
	dbDSN       string
	envFile     string
	memoryFile  string
	ffplayPath  string
	volume      int
	debug       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var opt options
	flag.StringVar(&opt.voice, "voice", "Puck", "Prebuilt voice for assistant speech")
	flag.StringVar(&opt.system, "system", "", "System instruction for the assistant persona")
	flag.StringVar(&opt.assistantID, "assistant-id", "", "Assistant id recorded on session events")
	flag.StringVar(&opt.model, "model", "", "Speech model (default: "+geminilive.DefaultModel+")")
	flag.StringVar(&opt.relayURL, "relay-url", "", "Relay gateway url; when set, connects through the relay instead of the hosted API")
	flag.StringVar(&opt.relayToken, "relay-token", "", "Bearer token for the relay gateway")
	flag.StringVar(&opt.mic, "mic", "", "Microphone device id or description substring (default: system default)")
	flag.StringVar(&opt.dbDSN, "db", "", "Postgres DSN for the session event log (optional)")
	flag.StringVar(&opt.envFile, "env", ".env", "Env file to load before reading configuration")
	flag.StringVar(&opt.memoryFile, "memory-file", "auralis-memory.txt", "File that save_to_memory appends to")
	flag.StringVar(&opt.ffplayPath, "ffplay-path", "ffplay", "Path to the ffplay executable")
	flag.IntVar(&opt.volume, "volume", 80, "Speaker volume 0-100")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := dotenv.Load(opt.envFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		return 1
	}
	if opt.dbDSN == "" {
		opt.dbDSN = os.Getenv("DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := buildDialer(opt, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	events, cleanup, err := buildEvents(ctx, opt.dbDSN, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer cleanup()

	speaker, err := startFFplaySpeaker(opt.ffplayPath, audio.PlaybackConfig(), opt.volume)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	sink := newSpeakerSink(speaker, speaker)
	defer sink.Close()

	source := pulseio.NewSource(opt.mic, logger)

	errCh := make(chan string, 1)
	session, err := live.NewSession(live.Config{
		AssistantID:       opt.assistantID,
		Voice:             opt.voice,
		SystemInstruction: opt.system,
		OnTurnComplete: func(user, assistant string) {
			if user != "" {
				fmt.Printf("you: %s\n", strings.TrimSpace(user))
			}
			if assistant != "" {
				fmt.Printf("assistant: %s\n", strings.TrimSpace(assistant))
			}
		},
		OnSaveToMemory: func(_ context.Context, info string) error {
			return appendMemory(opt.memoryFile, info)
		},
		OnUpdate: watchStatus(errCh, logger),
	}, live.Deps{
		Dialer: dialer,
		Source: source,
		Sink:   sink,
		Events: events,
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	if err := session.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	fmt.Println("session active; speak into the microphone (ctrl-c to end)")

	select {
	case <-ctx.Done():
		session.Stop(false)
		fmt.Println("session ended")
		return 0
	case msg := <-errCh:
		fmt.Fprintln(os.Stderr, "session error:", msg)
		return 1
	}
}

// buildDialer picks the relay when a url is configured, the hosted API
// otherwise.
func buildDialer(opt options, logger *slog.Logger) (live.Dialer, error) {
	if opt.relayURL != "" {
		return relay.NewDialer(relay.Options{
			URL:    opt.relayURL,
			Token:  opt.relayToken,
			Logger: logger,
		})
	}

	apiKey := os.Getenv("AURALIS_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return geminilive.NewDialer(geminilive.Options{
		APIKey: apiKey,
		Model:  opt.model,
		Logger: logger,
	})
}

// buildEvents opens the Postgres event log when a DSN is configured.
func buildEvents(ctx context.Context, dsn string, logger *slog.Logger) (live.EventSink, func(), error) {
	if dsn == "" {
		return nil, func() {}, nil
	}
	store, err := eventlog.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	sink := eventlog.NewSink(store, logger)
	cleanup := func() {
		sink.Flush()
		store.Close()
	}
	return sink, cleanup, nil
}

// watchStatus forwards the first error-status snapshot to errCh.
func watchStatus(errCh chan<- string, logger *slog.Logger) func(live.Snapshot) {
	var once sync.Once
	return func(snap live.Snapshot) {
		logger.Debug("session update", "status", snap.Status.String(), "speaking", snap.IsSpeaking)
		if snap.Status == live.StatusError && snap.Err != "" {
			once.Do(func() {
				select {
				case errCh <- snap.Err:
				default:
				}
			})
		}
	}
}

func appendMemory(path, info string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	line := fmt.Sprintf("%s\t%s\n", time.Now().UTC().Format(time.RFC3339), strings.TrimSpace(info))
	_, err = f.WriteString(line)
	return err
}
