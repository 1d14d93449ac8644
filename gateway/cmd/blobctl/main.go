// Command blobctl uploads, downloads and inspects blobs in a pairfs cluster.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/blobclient"
	"github.com/devrev/pairfs/pkg/chunkclient"
)

const usage = `usage: blobctl [-coordinator URL] [-timeout D] <command> [args]

commands:
  upload [-name NAME] <file>      store a file, printing the blob id
  download [-o FILE] <blobId>     fetch a blob to FILE (default stdout)
  delete <blobId>                 remove a blob's metadata
  list                            list stored blobs
  status                          show cluster status and node load
  integrity [run PASS]            show integrity counters or run a pass
`

type app struct {
	coordinator  *blobclient.CoordinatorClient
	orchestrator *blobclient.Orchestrator
	stdout       io.Writer
	stderr       io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("blobctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	defaultURL := os.Getenv("PAIRFS_COORDINATOR")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	coordinatorURL := fs.String("coordinator", defaultURL, "coordinator base URL")
	timeout := fs.Duration("timeout", 10*time.Second, "per-request timeout")
	parallelism := fs.Int("parallelism", 8, "concurrent replica writes")
	verbose := fs.Bool("v", false, "log progress to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger := zap.NewNop()
	if *verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
			defer logger.Sync()
		}
	}

	coordinator := blobclient.NewCoordinatorClient(*coordinatorURL, logger,
		blobclient.WithHTTPClient(nil, *timeout))
	a := &app{
		coordinator:  coordinator,
		orchestrator: blobclient.NewOrchestrator(coordinator, chunkclient.New(nil, *timeout), *parallelism, logger),
		stdout:       stdout,
		stderr:       stderr,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var err error
	switch cmd {
	case "upload":
		err = a.upload(ctx, rest)
	case "download":
		err = a.download(ctx, rest)
	case "delete":
		err = a.delete(ctx, rest)
	case "list":
		err = a.list(ctx)
	case "status":
		err = a.status(ctx)
	case "integrity":
		err = a.integrity(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "blobctl %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

// parseInterspersed parses flags that may appear before or after positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}
