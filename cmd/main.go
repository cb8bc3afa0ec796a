package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/BLAZED-sh/labelmatch/pkg/filter"
	"github.com/BLAZED-sh/labelmatch/pkg/label"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// keyPath collects repeated -key flags, outermost member first.
type keyPath []label.Label

func (p *keyPath) String() string {
	names := make([]string, len(*p))
	for i, l := range *p {
		names[i] = l.String()
	}
	return strings.Join(names, ".")
}

func (p *keyPath) Set(value string) error {
	*p = append(*p, label.New([]byte(value)))
	return nil
}

func main() {
	stderrIsTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	// CLI flag definitions
	// Basic options
	var path keyPath
	flag.Var(&path, "key", "Member name to descend into; repeat for nested members. Backslash escapes are decoded")
	extract := flag.Bool("extract", false, "Print the value at the end of the key path instead of the whole object")
	listenSocket := flag.String("listen", "", "Unix socket path to serve on instead of filtering stdin")
	socketPerms := flag.String("socket-perms", "0666", "Unix socket permissions in octal (e.g. 0666)")

	// Debug options
	debugSignal := flag.Int("debug-signal", int(syscall.SIGUSR1), "Signal number to use for dumping debug info (default: SIGUSR1)")

	// Performance options
	bufferSize := flag.Int("buffer", 16384, "Buffer size for JSON stream lexer")
	maxRead := flag.Int("max-read", 4096, "Maximum read size per operation")

	// Logging options
	logLevel := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	prettyLogs := flag.Bool("pretty", stderrIsTerminal, "Enable pretty logging output")
	useColor := flag.Bool("color", stderrIsTerminal, "Colorize the summary line")

	// Other options
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	// Version info
	const version = "0.1.0"

	// Handle version flag
	if *showVersion {
		fmt.Printf("labelmatch version %s\n", version)
		os.Exit(0)
	}

	// Validate required flags
	if len(path) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one --key flag is required")
		flag.Usage()
		os.Exit(2)
	}

	setupLogging(*logLevel, *prettyLogs)
	color.NoColor = !*useColor

	f := filter.NewFilter(path, *extract, *bufferSize, *maxRead)

	if *listenSocket == "" {
		os.Exit(filterStdin(f, path.String()))
	}

	serve(f, path.String(), *listenSocket, *socketPerms, *debugSignal, version)
}

// filterStdin filters stdin to stdout and returns the exit code: 0 when
// something matched, 1 when nothing did and 2 on errors.
func filterStdin(f *filter.Filter, path string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// Only the first signal is caught; a second one kills the process even if
	// stdin cannot be interrupted.
	context.AfterFunc(ctx, stop)

	out := bufio.NewWriter(os.Stdout)
	stats, err := f.Run(ctx, os.Stdin, out)
	if flushErr := out.Flush(); err == nil {
		err = flushErr
	}

	summary := color.New(color.FgGreen)
	if stats.Matched == 0 {
		summary = color.New(color.FgYellow)
	}
	summary.Fprintf(os.Stderr, "%s: matched %d of %d values\n", path, stats.Matched, stats.Objects)

	if err != nil {
		log.Error().Err(err).Msg("Filtering failed")
		return 2
	}
	if stats.Matched == 0 {
		return 1
	}
	return 0
}

func serve(f *filter.Filter, path string, listenSocket string, socketPerms string, debugSignal int, version string) {
	server := filter.NewServer(f)

	// Remove socket file if it exists
	if _, err := os.Stat(listenSocket); err == nil {
		if err := os.Remove(listenSocket); err != nil {
			log.Fatal().Err(err).Str("socket", listenSocket).Msg("Failed to remove existing socket file")
		}
		log.Debug().Str("socket", listenSocket).Msg("Removed existing socket file")
	}

	// Add listener
	if err := server.AddUnixSocketListener(context.Background(), listenSocket); err != nil {
		log.Fatal().Err(err).Str("socket", listenSocket).Msg("Failed to add Unix socket listener")
	}

	// Set socket permissions
	socketMode, err := strconv.ParseUint(socketPerms, 8, 32)
	if err != nil {
		log.Warn().Err(err).Str("perms", socketPerms).Msg("Invalid socket permissions format, using default 0666")
		socketMode = 0666
	}

	if err := os.Chmod(listenSocket, os.FileMode(socketMode)); err != nil {
		log.Warn().Err(err).Str("socket", listenSocket).Uint64("mode", socketMode).Msg("Failed to set socket permissions")
	}

	// Start listening
	if err := server.Listen(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start listening")
	}
	log.Info().
		Str("listen", listenSocket).
		Str("key", path).
		Str("version", version).
		Msg("Label filter started")

	// Setup signal handlers
	sigChan := make(chan os.Signal, 1)
	debugSigChan := make(chan os.Signal, 1)

	// Register for debug signal
	debugSig := syscall.Signal(debugSignal)
	signal.Notify(debugSigChan, debugSig)
	log.Info().Int("signal", debugSignal).Msg("Debug signal registered - send this signal to dump debug info")

	// Register for termination signals
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Handle signals
	go func() {
		for range debugSigChan {
			log.Info().Int("signal", debugSignal).Msg("Received debug signal - dumping debug information")
			server.DumpDebugInfo()

			// Additional debug: print goroutine stacks
			buf := make([]byte, 1<<20) // 1MB buffer
			stackLen := runtime.Stack(buf, true)
			log.Info().Msgf("=== GOROUTINE DUMP ===\n%s", buf[:stackLen])
		}
	}()

	// Wait for termination signal
	<-sigChan
	log.Info().Msg("Shutting down...")

	server.Shutdown()

	// Remove the socket file
	if err := os.Remove(listenSocket); err != nil {
		log.Warn().Err(err).Str("socket", listenSocket).Msg("Failed to remove socket file on shutdown")
	} else {
		log.Debug().Str("socket", listenSocket).Msg("Removed socket file")
	}
}

func setupLogging(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Stdout carries the filtered values, so logs go to stderr
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
