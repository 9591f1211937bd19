// Command xrayctl submits a chest X-ray from the terminal and prints the diagnosis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
	"github.com/yanqian/xray-diagnosis/internal/domain/workflow"
	"github.com/yanqian/xray-diagnosis/internal/infra/analyzeclient"
	"github.com/yanqian/xray-diagnosis/pkg/logger"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2

	progressWidth = 30
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	image     string
	age       string
	gender    string
	server    string
	token     string
	local     bool
	mockDelay time.Duration
	tick      time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("xrayctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.image, "image", "", "path to the X-ray image (required)")
	fs.StringVar(&opts.age, "age", "", "patient age in years (required)")
	fs.StringVar(&opts.gender, "gender", string(diagnosis.DefaultGender), "patient gender: male, female or other")
	fs.StringVar(&opts.server, "server", envOr("XRAY_SERVER", "http://localhost:8080"), "analysis server base URL")
	fs.StringVar(&opts.token, "token", os.Getenv("XRAY_TOKEN"), "bearer token sent to the server")
	fs.BoolVar(&opts.local, "local", false, "analyze in-process with the demo analyzer instead of calling a server")
	fs.DurationVar(&opts.mockDelay, "mock-delay", 2*time.Second, "simulated analysis time with -local")
	fs.DurationVar(&opts.tick, "tick", 150*time.Millisecond, "progress bar refresh interval")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	gender, ok := diagnosis.ParseGender(opts.gender)
	if !ok {
		fmt.Fprintf(stderr, "invalid gender %q: use male, female or other\n", opts.gender)
		return exitUsage
	}

	log := logger.NewWithWriter(stderr, envOr("LOG_LEVEL", "warn"))

	drawn := false
	form := workflow.NewForm(
		workflow.WithTickInterval(opts.tick),
		workflow.WithLogger(log),
		workflow.WithProgressObserver(func(progress int) {
			drawn = true
			fmt.Fprintf(stderr, "\ranalyzing %s", workflow.RenderProgress(progress, progressWidth))
		}),
	)
	if opts.image != "" {
		image, err := loadImage(opts.image)
		if err != nil {
			fmt.Fprintf(stderr, "read image: %v\n", err)
			return exitFailed
		}
		form.SelectImage(image)
	}
	form.SetAge(opts.age)
	form.SetGender(gender)

	result, notice, err := form.Submit(ctx, newSubmitter(opts, log))
	if drawn {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		if notice != nil {
			fmt.Fprintln(stderr, notice.String())
		} else {
			fmt.Fprintln(stderr, err)
		}
		return exitFailed
	}
	if err := workflow.Render(stdout, result); err != nil {
		fmt.Fprintf(stderr, "render result: %v\n", err)
		return exitFailed
	}
	return exitOK
}

func newSubmitter(opts options, log *slog.Logger) workflow.Submitter {
	if !opts.local {
		return analyzeclient.NewClient(opts.server, analyzeclient.WithToken(opts.token))
	}
	// anonymous analyses are neither archived nor kept, so no stores are needed
	svc := diagnosis.NewService(diagnosis.Config{MockDelay: opts.mockDelay},
		diagnosis.NewMockAnalyzer(opts.mockDelay), nil, nil, log)
	return workflow.SubmitterFunc(func(ctx context.Context, sub diagnosis.Submission) (diagnosis.Result, error) {
		report, err := svc.Analyze(ctx, 0, sub)
		if err != nil {
			return diagnosis.Result{}, err
		}
		return report.Result, nil
	})
}

func loadImage(path string) (diagnosis.ImageUpload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return diagnosis.ImageUpload{}, err
	}
	return diagnosis.ImageUpload{
		Filename: filepath.Base(path),
		MimeType: http.DetectContentType(data),
		Data:     data,
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
