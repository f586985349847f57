package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/yungbote/fastingles-audio/internal/app"
	"github.com/yungbote/fastingles-audio/internal/modules/audio/keys"
	"github.com/yungbote/fastingles-audio/internal/platform/apierr"
	"github.com/yungbote/fastingles-audio/internal/services"
)

const usage = `usage: fastingles-audio <command> [flags]

commands:
  migrate   apply the audio_cache schema
  ensure    make sure audio exists for one piece of text
  status    report cache state for an identity or text
  speak     resolve playable audio for text
  lesson    pre-generate audio for a lesson word list
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1], os.Args[2:])
	if err == nil {
		return
	}
	classified := classify(err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], classified)
	stop()
	os.Exit(classified.ExitCode())
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "migrate":
		return app.Migrate(ctx)
	case "ensure":
		return runEnsure(ctx, args)
	case "status":
		return runStatus(ctx, args)
	case "speak":
		return runSpeak(ctx, args)
	case "lesson":
		return runLesson(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		return apierr.New(400, "unknown_command", fmt.Errorf("unknown command %q", cmd))
	}
}

func withApp(ctx context.Context, fn func(*app.App) error) error {
	application, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer application.Close()
	application.Start()
	return fn(application)
}

func runEnsure(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ensure", flag.ContinueOnError)
	text := fs.String("text", "", "text to synthesize")
	lang := fs.String("lang", services.DefaultLanguage, "BCP-47 language code")
	category := fs.String("category", "", "lesson category for contextual paths")
	level := fs.Int("level", 1, "lesson level")
	kind := fs.String("kind", string(keys.KindWord), "word, sentence or mnemonic")
	provider := fs.String("provider", "", "tts provider (default from TTS_PROVIDER)")
	withURL := fs.Bool("url", true, "include a download URL")
	if err := fs.Parse(args); err != nil {
		return apierr.New(400, "bad_flags", err)
	}

	return withApp(ctx, func(a *app.App) error {
		res, err := a.Services.AudioCache.EnsureAudio(ctx, services.EnsureAudioRequest{
			Text:     *text,
			Language: *lang,
			Category: *category,
			Level:    *level,
			Kind:     keys.Kind(*kind),
			Provider: *provider,
			WithURL:  *withURL,
		})
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	identity := fs.String("identity", "", "content identity (sha256 hex)")
	text := fs.String("text", "", "text to derive the identity from")
	lang := fs.String("lang", services.DefaultLanguage, "language used with -text")
	if err := fs.Parse(args); err != nil {
		return apierr.New(400, "bad_flags", err)
	}
	id := strings.TrimSpace(*identity)
	if id == "" && strings.TrimSpace(*text) != "" {
		id = keys.Hash(*text, *lang)
	}
	if id == "" {
		return apierr.New(400, "bad_flags", errors.New("one of -identity or -text is required"))
	}

	return withApp(ctx, func(a *app.App) error {
		st, err := a.Services.AudioCache.CheckStatus(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(st)
	})
}

func runSpeak(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("speak", flag.ContinueOnError)
	text := fs.String("text", "", "text to speak")
	lang := fs.String("lang", services.DefaultLanguage, "BCP-47 language code")
	provider := fs.String("provider", "", "tts provider, or browser for client-side speech")
	if err := fs.Parse(args); err != nil {
		return apierr.New(400, "bad_flags", err)
	}

	return withApp(ctx, func(a *app.App) error {
		res, err := a.Services.AudioCache.Speak(ctx, services.SpeakRequest{
			Text:     *text,
			Language: *lang,
			Provider: *provider,
		})
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func runLesson(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lesson", flag.ContinueOnError)
	file := fs.String("file", "", "YAML lesson word list")
	words := fs.String("words", "", "comma-separated words (alternative to -file)")
	category := fs.String("category", "", "lesson category")
	level := fs.Int("level", 0, "lesson level")
	lang := fs.String("lang", "", "BCP-47 language code")
	provider := fs.String("provider", "", "tts provider")
	wait := fs.Bool("wait", true, "run in the foreground and print the batch summary")
	if err := fs.Parse(args); err != nil {
		return apierr.New(400, "bad_flags", err)
	}

	req, err := buildLessonRequest(*file, *words, lessonOverrides{
		Category: *category,
		Level:    *level,
		Language: *lang,
		Provider: *provider,
	})
	if err != nil {
		return apierr.New(400, "bad_lesson", err)
	}

	return withApp(ctx, func(a *app.App) error {
		if !*wait {
			// Close drains the runner before exit.
			if err := a.Services.AudioCache.EnsureLessonAudio(ctx, req); err != nil {
				return err
			}
			return printJSON(map[string]any{"queued": len(req.Words), "category": req.Category, "level": req.Level})
		}
		res, err := a.Services.AudioCache.GenerateLessonAudio(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func classify(err error) *apierr.Error {
	if code, ok := storageCode(err); ok {
		return apierr.New(503, "storage_"+code, err)
	}
	return apierr.Classify(err,
		apierr.Rule{Target: services.ErrInvalidArgument, Status: 400, Code: "invalid_argument"},
		apierr.Rule{Target: services.ErrGenerationFailed, Status: 502, Code: "generation_failed"},
		apierr.Rule{Target: context.Canceled, Status: 499, Code: "cancelled"},
		apierr.Rule{Target: context.DeadlineExceeded, Status: 504, Code: "timeout"},
	)
}

func storageCode(err error) (string, bool) {
	var bootstrapErr *app.StorageBootstrapError
	if errors.As(err, &bootstrapErr) {
		return string(bootstrapErr.Code), true
	}
	return "", false
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
