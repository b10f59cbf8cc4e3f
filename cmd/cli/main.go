package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/HearBird/internal/audio"
	"github.com/himanishpuri/HearBird/pkg/hearbird"
	"github.com/himanishpuri/HearBird/pkg/hearbird/classifier"
	"github.com/himanishpuri/HearBird/pkg/hearbird/model"
	"github.com/himanishpuri/HearBird/pkg/hearbird/recorder"
	"github.com/himanishpuri/HearBird/pkg/hearbird/reference"
	"github.com/himanishpuri/HearBird/pkg/logger"
	"github.com/himanishpuri/HearBird/pkg/utils"
)

// Global flags. Empty values keep whatever the HEARBIRD_* environment says.
var (
	endpoint    string
	fallback    string
	shape       string
	referenceDB string
	lat, lon    float64
	ffmpegPath  string
	inputFormat string
	inputDevice string
	verbose     bool
)

func registerFlags() {
	flag.StringVar(&endpoint, "endpoint", "", "Classification endpoint (env: "+hearbird.EnvEndpoint+")")
	flag.StringVar(&fallback, "fallback", "", "Serve demo results when the classifier fails: true|false (env: "+hearbird.EnvFallback+")")
	flag.StringVar(&shape, "shape", "", "Response wire shape: numeric|string (env: "+hearbird.EnvWireShape+")")
	flag.StringVar(&referenceDB, "db", "", "SQLite reference catalogue (env: "+hearbird.EnvReferenceDB+", default: built-in)")
	flag.Float64Var(&lat, "lat", 0, "Recording latitude")
	flag.Float64Var(&lon, "lon", 0, "Recording longitude")
	flag.StringVar(&ffmpegPath, "ffmpeg", "ffmpeg", "ffmpeg binary used for microphone capture")
	flag.StringVar(&inputFormat, "input-format", "", "ffmpeg capture format (alsa, pulse, avfoundation, dshow)")
	flag.StringVar(&inputDevice, "input-device", "", "ffmpeg capture device")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
}

// options merges environment configuration with explicit flags. Flags win.
func options() ([]hearbird.Option, error) {
	opts, err := hearbird.FromEnv()
	if err != nil {
		return nil, err
	}
	if endpoint != "" {
		opts = append(opts, hearbird.WithEndpoint(endpoint))
	}
	if fallback != "" {
		switch strings.ToLower(fallback) {
		case "true", "1", "yes":
			opts = append(opts, hearbird.WithFallback(true))
		case "false", "0", "no":
			opts = append(opts, hearbird.WithFallback(false))
		default:
			return nil, fmt.Errorf("invalid --fallback value %q", fallback)
		}
	}
	if shape != "" {
		s, err := classifier.ParseShape(shape)
		if err != nil {
			return nil, err
		}
		opts = append(opts, hearbird.WithWireShape(s))
	}
	if referenceDB != "" {
		opts = append(opts, hearbird.WithReferenceDB(referenceDB))
	}
	if lat != 0 || lon != 0 {
		opts = append(opts, hearbird.WithLocation(lat, lon))
	}
	opts = append(opts, hearbird.WithDevice(&recorder.FFmpegMicrophone{
		FFmpegPath:  ffmpegPath,
		InputFormat: inputFormat,
		InputDevice: inputDevice,
	}))
	return opts, nil
}

// reported is the last error already shown through OnError.
var reported error

func callbacks(w io.Writer) hearbird.Callbacks {
	return hearbird.Callbacks{
		OnStateChange: func(s recorder.State) {
			switch s {
			case recorder.RequestingPermission:
				fmt.Fprintln(w, "🎙️  Opening microphone...")
			case recorder.Recording:
				fmt.Fprintln(w, "🔴 Recording. Press Enter to stop.")
			case recorder.Stopping:
				fmt.Fprintln(w, "⏹️  Stopping...")
			}
		},
		OnCaptureReady: func(c *model.AudioCapture) {
			if info, err := audio.InspectWAV(c.Bytes()); err == nil {
				fmt.Fprintf(w, "🔍 Identifying %s (%.1fs, %d Hz)...\n", c.Filename(), info.Duration.Seconds(), info.SampleRate)
				return
			}
			fmt.Fprintf(w, "🔍 Identifying %s (%.1f KB)...\n", c.Filename(), float64(c.Size())/1024)
		},
		OnError: func(err error) {
			reportError(w, err)
			reported = err
		},
	}
}

func newController() (*hearbird.Controller, error) {
	opts, err := options()
	if err != nil {
		return nil, err
	}
	return hearbird.New(callbacks(os.Stdout), opts...)
}

func main() {
	_ = godotenv.Load()
	registerFlags()
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()
	if verbose {
		log.SetLevel(logger.DEBUG)
	}

	printBanner()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	var err error
	switch command {
	case "record":
		err = handleRecord(args)
	case "analyze":
		err = handleAnalyze(args)
	case "catalog":
		err = handleCatalog(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		if err != reported {
			reportError(os.Stdout, err)
		}
		log.Debugf("%s failed: %v", command, err)
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
 _   _                 ____  _         _
| | | | ___  __ _ _ __| __ )(_)_ __ __| |
| |_| |/ _ \/ _' | '__|  _ \| | '__/ _' |
|  _  |  __/ (_| | |  | |_) | | | | (_| |
|_| |_|\___|\__,_|_|  |____/|_|_|  \__,_|

        Bird Sound Identification
`
	fmt.Println(banner)
}

func handleRecord(args []string) error {
	recordCmd := flag.NewFlagSet("record", flag.ExitOnError)
	duration := recordCmd.Duration("duration", 0, "Stop automatically after this long (default: wait for Enter)")
	recordCmd.Parse(args)

	ctrl, err := newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := ctrl.StartRecording(ctx); err != nil {
		return err
	}

	stopped := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(stopped)
	}()
	var timer <-chan time.Time
	if *duration > 0 {
		timer = time.After(*duration)
	}
	select {
	case <-stopped:
	case <-timer:
	case <-ctx.Done():
	}

	// Classification gets its own deadline; an interrupt only ends capture.
	if err := ctrl.StopRecording(context.Background()); err != nil {
		return err
	}
	printResults(os.Stdout, ctrl.Results(), ctrl.Suggest)
	return nil
}

func handleAnalyze(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: hearbird analyze <audio_file>")
		os.Exit(1)
	}

	capture, err := model.CaptureFromFile(args[0])
	if err != nil {
		return err
	}

	ctrl, err := newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := ctrl.SelectFile(ctx, capture); err != nil {
		return err
	}
	printResults(os.Stdout, ctrl.Results(), ctrl.Suggest)
	return nil
}

func handleCatalog(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: hearbird catalog <list|import|export> [file]")
		os.Exit(1)
	}
	db := referenceDB
	if db == "" {
		db = os.Getenv(hearbird.EnvReferenceDB)
	}

	switch args[0] {
	case "list":
		store, err := loadCatalog(db)
		if err != nil {
			return err
		}
		printCatalog(os.Stdout, store.Entries())
		return nil

	case "import":
		if len(args) < 2 || db == "" {
			fmt.Println("Usage: hearbird --db <catalog.sqlite3> catalog import <entries.json|builtin>")
			os.Exit(1)
		}
		entries, err := readEntries(args[1])
		if err != nil {
			return err
		}
		n, err := reference.SeedSQLite(db, entries)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Imported %d species into %s\n", n, db)
		return nil

	case "export":
		store, err := loadCatalog(db)
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return reference.EncodeJSON(os.Stdout, store.Entries())
		}
		var buf bytes.Buffer
		if err := reference.EncodeJSON(&buf, store.Entries()); err != nil {
			return err
		}
		if err := utils.WriteFileAtomic(args[1], buf.Bytes()); err != nil {
			return err
		}
		fmt.Printf("✅ Exported %d species to %s\n", store.Len(), args[1])
		return nil
	}
	return fmt.Errorf("unknown catalog command: %s", args[0])
}

func loadCatalog(db string) (*reference.MemoryStore, error) {
	if db == "" {
		return reference.Builtin()
	}
	return reference.OpenSQLite(db)
}

func readEntries(path string) ([]model.ReferenceEntry, error) {
	if path == "builtin" {
		store, err := reference.Builtin()
		if err != nil {
			return nil, err
		}
		return store.Entries(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return reference.DecodeJSON(f)
}

// userMessage prefers the user-facing text of pipeline errors.
func userMessage(err error) string {
	var me *model.Error
	if errors.As(err, &me) {
		return me.Message
	}
	if errors.Is(err, hearbird.ErrBusy) {
		return "Already identifying a recording, please wait."
	}
	return err.Error()
}

func printUsage() {
	fmt.Println("HearBird - Bird Sound Identification CLI")
	fmt.Println("\nUsage: hearbird [options] <command> [args]")
	fmt.Println("\nCommands:")
	fmt.Println("  record [--duration 10s]             Record from the microphone and identify")
	fmt.Println("  analyze <audio_file>                Identify birds in an audio file")
	fmt.Println("  catalog list                        List catalogued species")
	fmt.Println("  catalog import <file.json|builtin>  Load species into the --db catalogue")
	fmt.Println("  catalog export [file.json]          Write the catalogue as JSON")
	fmt.Println("\nOptions:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  hearbird analyze blackbird.mp3")
	fmt.Println("  hearbird --fallback true record --duration 15s")
	fmt.Println("  hearbird --db birds.sqlite3 catalog import builtin")
}
