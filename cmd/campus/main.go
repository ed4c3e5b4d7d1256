// Command campus is a terminal client for the campus portal: session
// management, role-specific academic views and realtime chat.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rkvalley/campus/internal/app"
	"github.com/rkvalley/campus/internal/config"
	"github.com/rkvalley/campus/internal/gateway"
	"github.com/rkvalley/campus/internal/logging"
	"github.com/rkvalley/campus/internal/metrics"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `campus CLI
Usage:
  campus [-config file] [-storage file|redis|memory] [-profile name]
         [-log-level L] [-log-file F] [-metrics-addr A] <cmd> [args]

Commands:
  version
  login       -u <username> -p <password>
  register    -name <n> -u <username> -email <e> -p <password> -role Student|Faculty|Admin [-class c] [-pic file]
  verify      -email <e> -otp <code>                 (logs in)
  resend-otp  -email <e>
  logout
  whoami
  route       <path>                                 (access decision for the current session)
  get         <api-path>                             (authenticated GET, prints JSON)
  assignments
  timetable
  attendance  [-subject s] [-month m] [-year y]
  content
  feedback    [-faculty id -subject s -rating 1-5 [-comments c] [-anonymous]]
  chat        [-with <userID>]
  relay-tail  [-user <userID>]                       (prints events relayed over NATS)
`)
}

// usageError makes main exit with status 2.
type usageError string

func (e usageError) Error() string { return string(e) }

func main() {
	configPath := flag.String("config", "", "config file (yaml, json or toml)")
	storageKind := flag.String("storage", "", "session storage: file, redis or memory")
	profile := flag.String("profile", "", "session profile name")
	logLevel := flag.String("log-level", "", "log level")
	logFile := flag.String("log-file", "", "log file (default stderr)")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("campus %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	override(&cfg.Storage, *storageKind)
	override(&cfg.Profile, *profile)
	override(&cfg.LogLevel, *logLevel)
	override(&cfg.LogFile, *logFile)
	override(&cfg.MetricsAddr, *metricsAddr)

	logger, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.Development,
		OutputPath:  cfg.LogFile,
	})
	if err != nil {
		fail(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr, logger)
	}

	a, err := app.New(ctx, cfg, logger, app.WithNavigator(gateway.NavigatorFunc(func(path string) {
		fmt.Fprintf(os.Stderr, "session ended by the server; run `campus login` (%s)\n", path)
	})))
	if err != nil {
		fail(err)
	}
	// Only the realtime commands connect; the rest just restore the session.
	if cmd == "chat" {
		a.Start(ctx)
	} else {
		a.Sessions.Restore(ctx)
	}

	err = dispatch(ctx, a, cmd, args)
	if cerr := a.Close(); cerr != nil {
		logger.Warn("shutdown", zap.Error(cerr))
	}
	if err != nil {
		if _, ok := err.(usageError); ok {
			fmt.Fprintln(os.Stderr, err)
			usage()
			os.Exit(2)
		}
		fail(err)
	}
}

func dispatch(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "login":
		return cmdLogin(ctx, a, args)
	case "register":
		return cmdRegister(ctx, a, args)
	case "verify":
		return cmdVerify(ctx, a, args)
	case "resend-otp":
		return cmdResendOTP(ctx, a, args)
	case "logout":
		return a.Sessions.Logout(ctx)
	case "whoami":
		return cmdWhoami(a)
	case "route":
		return cmdRoute(a, args)
	case "get":
		return cmdGet(ctx, a, args)
	case "assignments":
		return cmdAssignments(ctx, a)
	case "timetable":
		return cmdTimetable(ctx, a)
	case "attendance":
		return cmdAttendance(ctx, a, args)
	case "content":
		return cmdContent(ctx, a)
	case "feedback":
		return cmdFeedback(ctx, a, args)
	case "chat":
		return cmdChat(ctx, a, args)
	case "relay-tail":
		return cmdRelayTail(ctx, a, args)
	default:
		return usageError("unknown command " + cmd)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener", zap.String("addr", addr), zap.Error(err))
		}
	}()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
