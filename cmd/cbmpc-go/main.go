// Command cbmpc-go exercises the bridge end to end.
//
//	cbmpc-go version
//	cbmpc-go demo  [-config cbmpc.toml] [-parties 3] [-message text]
//	cbmpc-go party [-config cbmpc.toml] -self 0 -addrs host:port,host:port,...
//
// demo runs every protocol locally over an in-memory network. party runs one
// member of an N-party DKG and signing over TCP.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc"
	"github.com/coinbase/cb-mpc-bridge-go/pkg/cbmpc/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "version":
		fmt.Printf("cb-mpc-bridge-go %s\n", cbmpc.WrapperVersion())
		fmt.Printf("cb-mpc upstream: %s (%s)\n", cbmpc.UpstreamVersion(), cbmpc.UpstreamDir)
	case "demo":
		err = runDemo(args)
	case "party":
		err = runParty(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbmpc-go: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cbmpc-go <version|demo|party> [flags]")
}

// common holds the flags shared by demo and party.
type common struct {
	configPath string
	verbose    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to a TOML configuration file")
	fs.BoolVar(&c.verbose, "v", false, "log engine activity at debug level")
}

// open loads the configuration and opens the library with a console logger.
func (c *common) open() (*cbmpc.Library, logging.Logger, error) {
	cfg := cbmpc.DefaultConfig()
	if c.configPath != "" {
		var err error
		if cfg, err = cbmpc.LoadConfig(c.configPath); err != nil {
			return nil, nil, err
		}
	}

	level := zerolog.InfoLevel
	if c.verbose {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	log := logging.NewZerolog(zl)
	cfg.Logger = log

	lib, err := cbmpc.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return lib, log, nil
}
