// Command tse-cli solves, sends and simulates extender commands without a
// robot server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"

	"tse"
	"tse/ik"
)

type command struct {
	usage string
	run   func(ctx context.Context, args []string, logger logging.Logger) error
}

const (
	solveUsage    = "solve [-config file] x y z yaw pitch roll"
	sendUsage     = "send -config file x y z yaw pitch roll"
	sweepUsage    = "sweep -config file [-duration 20s] [-rate 20] [-z 48]"
	portsUsage    = "ports [-all]"
	simulateUsage = "simulate [-listen 127.0.0.1:9000] [-byte-order little]"
)

var commands = map[string]command{
	"solve":    {solveUsage, runSolve},
	"send":     {sendUsage, runSend},
	"sweep":    {sweepUsage, runSweep},
	"ports":    {portsUsage, runPorts},
	"simulate": {simulateUsage, runSimulate},
}

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	if len(os.Args) < 2 {
		usage()
		return fmt.Errorf("missing subcommand")
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		return fmt.Errorf("unknown subcommand %q", os.Args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger("tse-cli")
	return cmd.run(ctx, os.Args[2:], logger)
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(os.Stderr, "usage:")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  tse-cli %s\n", commands[name].usage)
	}
}

// loadConfig reads path, or returns a config for the built unit when path is
// empty and no controller is needed.
func loadConfig(path string, needTransport bool) (*tse.ExtenderConfig, error) {
	if path != "" {
		return tse.LoadConfigFile(path)
	}
	if needTransport {
		return nil, fmt.Errorf("-config is required")
	}
	cfg := &tse.ExtenderConfig{}
	cfg.Transport.Address = "localhost:0"
	if _, _, err := cfg.Validate("cli"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parsePose(args []string) (ik.Pose, error) {
	if len(args) != 6 {
		return ik.Pose{}, fmt.Errorf("expected x y z yaw pitch roll, got %d values", len(args))
	}
	values := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return ik.Pose{}, fmt.Errorf("pose value %d: %w", i, err)
		}
		values[i] = v
	}
	return ik.PoseFromSlice(values)
}

func openExtender(ctx context.Context, cfg *tse.ExtenderConfig, logger logging.Logger) (*tse.Extender, error) {
	return tse.NewExtender(ctx, generic.Named("tse-cli"), cfg, tse.NewChannelRegistry(nil), logger)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: tse-cli %s\n", usage)
		fs.PrintDefaults()
	}
	return fs
}
