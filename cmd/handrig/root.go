package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/ayusman/handrig/internal/app"
	"github.com/ayusman/handrig/internal/capture"
	"github.com/ayusman/handrig/internal/detector"
	"github.com/ayusman/handrig/internal/display"
	"github.com/ayusman/handrig/internal/logging"
	"github.com/ayusman/handrig/internal/model"
	"github.com/ayusman/handrig/internal/server"
	"github.com/ayusman/handrig/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	camera          int
	modelPath       string
	modelURL        string
	maxHands        int
	headless        bool
	httpAddr        string
	recordPath      string
	motionThreshold float64
	frames          int
	logFile         string
	verbose         bool
}

// newRootCmd builds the command. Defaults read HANDRIG_* variables, so the
// environment (and .env) must be loaded before calling it.
func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "handrig",
		Short: "Draw a live hand skeleton over the webcam feed",
		Long: `handrig reads frames from a webcam, detects hand landmarks with the MediaPipe
hand landmarker and draws the hand skeleton over every frame.
Press Q in the window to quit.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closeLog := logging.New(logging.Options{Verbose: opts.verbose, File: opts.logFile})
			defer closeLog()
			return report(log, run(cmd.Context(), opts, log))
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.camera, "camera", "c", envInt("HANDRIG_CAMERA", 0), "Camera device index")
	f.StringVarP(&opts.modelPath, "model", "m", envString("HANDRIG_MODEL_PATH", model.DefaultPath), "Hand landmarker model file, downloaded when missing")
	f.StringVar(&opts.modelURL, "model-url", envString("HANDRIG_MODEL_URL", model.DefaultURL), "Where to download the model from")
	f.IntVar(&opts.maxHands, "max-hands", 2, "Maximum number of hands to detect per frame")
	f.BoolVar(&opts.headless, "headless", false, "Do not open a window")
	f.StringVar(&opts.httpAddr, "http", "", "Serve the live stream and API on this address, e.g. :8080")
	f.StringVar(&opts.recordPath, "record", "", "Record detected landmarks to this SQLite database")
	f.Float64Var(&opts.motionThreshold, "motion-threshold", 0, "Skip detection while less than this percentage of pixels changes (0 = always detect)")
	f.IntVar(&opts.frames, "frames", 0, "Stop after this many frames (0 = until Q is pressed)")
	f.StringVar(&opts.logFile, "log-file", "", "Also write logs to this file, rotated")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")

	return cmd
}

func run(parent context.Context, opts options, log *logrus.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.maxHands <= 0 {
		return fmt.Errorf("--max-hands must be positive, got %d", opts.maxHands)
	}

	modelPath, err := model.Ensure(ctx, log, opts.modelPath, opts.modelURL)
	if err != nil {
		return err
	}

	var st *store.Store
	if opts.recordPath != "" {
		st, err = store.New(opts.recordPath)
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		defer st.Close()
	}

	detCfg := detector.DefaultConfig()
	detCfg.ModelPath = modelPath
	detCfg.MaxHands = opts.maxHands
	det, err := detector.NewMediaPipeDetector(detCfg, log)
	if err != nil {
		return fmt.Errorf("hand landmarker: %w", err)
	}

	var rec *store.Recorder
	if st != nil {
		if rec, err = store.NewRecorder(st, opts.camera, opts.maxHands, log); err != nil {
			det.Close()
			return err
		}
	}

	var disp display.Display
	if opts.headless {
		disp = display.NewHeadless()
	} else {
		disp = display.NewWindow(display.DefaultTitle)
	}

	cfg := app.DefaultConfig()
	cfg.CameraID = opts.camera
	cfg.MaxHands = opts.maxHands
	cfg.MotionThreshold = opts.motionThreshold
	a := app.New(cfg, capture.NewCamera(opts.camera), det, disp, log)
	if rec != nil {
		a.SetRecorder(rec)
	}

	httpCtx, stopHTTP := context.WithCancel(ctx)
	defer stopHTTP()
	serverDone := make(chan struct{})
	if opts.httpAddr != "" {
		hub := server.NewHub(log)
		a.SetSink(hub)
		srv := server.New(server.Config{
			StaticDir: findWebDir(),
			Store:     st,
			Hub:       hub,
			Log:       log,
		})
		go func() {
			defer close(serverDone)
			if err := srv.ListenAndServe(httpCtx, opts.httpAddr); err != nil {
				log.WithError(err).Error("HTTP server failed")
			}
		}()
	} else {
		close(serverDone)
	}

	until := app.QuitOnKey('q')
	if opts.frames > 0 {
		until = app.Any(until, app.AfterFrames(opts.frames))
	}

	err = a.Run(ctx, until)
	stopHTTP()
	<-serverDone

	return err
}

// report logs err unless it was already reported where it happened. A camera
// that cannot be opened ends the program normally, after its log entry.
func report(log logrus.FieldLogger, err error) error {
	if err == nil || errors.Is(err, app.ErrCameraOpen) {
		return nil
	}
	log.WithError(err).Error("handrig failed")
	return err
}

// findWebDir searches for a web directory to serve next to the API.
// It checks: "web", "../web", and ~/.handrig/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".handrig", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
