// basketctl browses baskets, estimates and buys them, and manages the local wallet
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

const usage = `Usage: basketctl [flags] <command> [args]

Commands:
  baskets                         List baskets
  estimate <basket> [-amount]     Units per asset at reference prices
  buy <basket> [-amount] [-mode] [-weights] [-local]
                                  Buy a basket, printing each leg as it resolves
  portfolio <address>             Value the holdings of an address
  wallet new [-force] | show | import [key]
                                  Manage the local signing wallet

Flags:
`

// errRunFailed marks a purchase whose outcome was already printed
var errRunFailed = errors.New("purchase did not complete")

type globals struct {
	server   string
	ws       string
	apiKey   string
	config   string
	logLevel string
	timeout  time.Duration
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("basketctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	g := &globals{}
	fs.StringVar(&g.server, "server", envOr("BASKET_SERVER", "http://localhost:8080"), "basketd API base URL")
	fs.StringVar(&g.ws, "ws", envOr("BASKET_WS", "ws://localhost:8081/ws"), "basketd progress stream URL")
	fs.StringVar(&g.apiKey, "api-key", os.Getenv("BASKET_API_KEY"), "API key sent as "+apiKeyHeader)
	fs.StringVar(&g.config, "config", envOr("CONFIG_FILE", "configs/basketd.yaml"), "Configuration for wallet and -local commands")
	fs.StringVar(&g.logLevel, "log-level", "ERROR", "Log level for diagnostics on stderr")
	fs.DurationVar(&g.timeout, "timeout", 30*time.Second, "HTTP request timeout")
	showVersion := fs.Bool("version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "basketctl version %s (built %s)\n", version, buildTime)
		return 0
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &commands{g: g, in: stdin, out: stdout, errOut: stderr}

	var err error
	switch rest[0] {
	case "baskets":
		err = c.baskets(ctx, rest[1:])
	case "estimate":
		err = c.estimate(ctx, rest[1:])
	case "buy":
		err = c.buy(ctx, rest[1:])
	case "portfolio":
		err = c.portfolio(ctx, rest[1:])
	case "wallet":
		err = c.wallet(ctx, rest[1:])
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		fs.Usage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errRunFailed):
		return 1
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errBadFlags):
		return 2
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

var (
	// errUsage wraps argument mistakes
	errUsage = errors.New("usage")
	// errBadFlags is returned after the flag set has already reported the problem
	errBadFlags = errors.New("invalid flags")
)

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errBadFlags
	}
	return nil
}

func usageErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{errUsage}, args...)...)
}

// parseWithTarget parses a subcommand whose single positional argument may come before or after
// its flags
func parseWithTarget(fs *flag.FlagSet, args []string, name string) (string, error) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if err := parseFlags(fs, args[1:]); err != nil {
			return "", err
		}
		if fs.NArg() > 0 {
			return "", usageErrorf("unexpected argument %q", fs.Arg(0))
		}
		return args[0], nil
	}
	if err := parseFlags(fs, args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", usageErrorf("%s requires exactly one <%s>", fs.Name(), name)
	}
	return fs.Arg(0), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
