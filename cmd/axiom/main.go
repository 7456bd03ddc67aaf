package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/chromium/axiom-sub003/server"
	"github.com/chromium/axiom-sub003/stream"
)

const usage = `Usage: axiom [flags] <command> [args]

Commands:
  run <cmd> [args...]   run one command line against the namespace
  serve                 serve the namespace to remote nodes
  mount <dir> [root]    expose the namespace on a host mount point

Flags:
`

func main() {
	var (
		configPath string
		seedPath   string
		listen     string
		verbose    int
		umount     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.StringVar(&seedPath, "nodes", "", "Path to a seed file of nodes created at startup")
	flag.StringVar(&seedPath, "n", "", "--nodes (shorthand)")
	flag.StringVar(&listen, "listen", "", "Listen address of the remote endpoint (overrides the config)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the mount point first if needed. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace).")
	flag.IntVar(&verbose, "v", config.InfoVerbose, "--verbose (shorthand)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	logLvl := config.VerboseToLogLevel(verbose)
	util.InitializeLogger(logLvl)
	logger := util.GetLogger("main")

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config")
	}
	cfg.LogLvl = logLvl
	if seedPath != "" {
		cfg.SeedFile = seedPath
	}
	if listen != "" {
		cfg.RemoteListen = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	node, err := server.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize node")
	}
	defer func() { _ = node.Close() }()

	args := flag.Args()
	switch args[0] {
	case "run":
		code := runCommand(ctx, node, args[1:])
		_ = node.Close()
		os.Exit(code)
	case "serve":
		if err := node.ListenAndServe(ctx); err != nil {
			logger.Error().Err(err).Msg("Serve failed")
			os.Exit(1)
		}
	case "mount":
		if len(args) < 2 {
			logger.Fatal().Msg("Mount point not specified")
		}
		root := "/"
		if len(args) > 2 {
			root = args[2]
		}
		if umount {
			// Ignored when nothing is mounted.
			_ = exec.Command("fusermount", "-u", args[1]).Run()
		}
		mountAndWait(ctx, node, root, args[1])
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runCommand runs one command line with the process stdio attached and
// returns the exit status.
func runCommand(ctx context.Context, node *server.Server, argv []string) int {
	pipes := axiom.NewStdioPipes(node.Config().StreamHighWater)
	forward(pipes.Stdout, os.Stdout)
	forward(pipes.Stderr, os.Stderr)
	forward(pipes.Tty, os.Stderr)

	pipes.Signal.End()
	go func() {
		if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice == 0 {
			_, _ = io.Copy(stream.AsWriter(pipes.Stdin), os.Stdin)
		}
		pipes.Stdin.End()
	}()

	v, err := node.Run(ctx, argv, pipes.Stdio)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", fserr.Format(err))
		return 1
	}
	util.GetLogger("main").Debug().Interface("result", v).Msg("Command finished")
	return 0
}

func forward(r *stream.Readable, w io.Writer) {
	r.OnData(func(v any) { fmt.Fprint(w, stream.Text(v)) })
	r.Resume()
}

func mountAndWait(ctx context.Context, node *server.Server, root, mountPoint string) {
	logger := util.GetLogger("main")

	fuse, err := node.Mount(root, mountPoint)
	if err != nil {
		logger.Fatal().Err(err).Str("mountpoint", mountPoint).Msg("Failed to mount filesystem")
	}
	logger.Info().Str("mountpoint", mountPoint).Msg("Filesystem mounted successfully")

	unmounted := make(chan struct{})
	go func() {
		fuse.Wait()
		close(unmounted)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Received signal, unmounting filesystem")
		if err := fuse.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount filesystem")
			return
		}
		logger.Info().Msg("Filesystem unmounted successfully")
	case <-unmounted:
		logger.Info().Msg("Filesystem unmounted externally")
	}
}
