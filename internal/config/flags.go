package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	Config string

	RPCEndpoint string
	RPCUser     string
	RPCPass     string

	StoreDSN string

	PollInterval       time.Duration
	ReorgSweepInterval time.Duration
	BaseHeight         int64

	LogLevel string
	LogFile  string
	LogJSON  bool

	SetLogJSON bool
}

// ParseFlags parses command-line flags for bagtrackerd.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("bagtrackerd", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	fs.StringVar(&f.RPCEndpoint, "rpc-endpoint", "", "Remote node JSON-RPC endpoint")
	fs.StringVar(&f.RPCUser, "rpc-user", "", "RPC basic-auth username")
	fs.StringVar(&f.RPCPass, "rpc-pass", "", "RPC basic-auth password")

	fs.StringVar(&f.StoreDSN, "store-dsn", "", "Storage DSN: memory://, sqlite://<path>, or badger://<path>")

	fs.DurationVar(&f.PollInterval, "poll-interval", 0, "Poll interval (drives no loop; each reorg sweep also picks up new blocks)")
	fs.DurationVar(&f.ReorgSweepInterval, "reorg-interval", 0, "Interval between reorg sweeps")
	fs.Int64Var(&f.BaseHeight, "base-height", -1, "Height treated as already processed at startup; scanning begins after it")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() { printUsage() }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetLogJSON = isFlagSet(fs, "log-json")

	return f
}

// ApplyFlags applies command-line flags to cfg.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.RPCEndpoint != "" {
		cfg.RPC.Endpoint = f.RPCEndpoint
	}
	if f.RPCUser != "" {
		cfg.RPC.User = f.RPCUser
	}
	if f.RPCPass != "" {
		cfg.RPC.Pass = f.RPCPass
	}
	if f.StoreDSN != "" {
		cfg.StoreDSN = f.StoreDSN
	}
	if f.PollInterval != 0 {
		cfg.PollInterval = f.PollInterval
	}
	if f.ReorgSweepInterval != 0 {
		cfg.ReorgSweepInterval = f.ReorgSweepInterval
	}
	if f.BaseHeight >= 0 {
		cfg.BaseHeight = f.BaseHeight
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `bagtrackerd - reorg-aware bag/bid tracker for a Bitcoin-like chain

Usage:
  bagtrackerd [options]
  bagtrackerd --help

Commands:
  --help, -h      Show this help message
  --version       Show version information

Options:
  --config, -c      Config file path (default: ~/.bagtrackerd/bagtrackerd.conf)
  --rpc-endpoint    Remote node JSON-RPC endpoint
  --rpc-user        RPC basic-auth username
  --rpc-pass        RPC basic-auth password
  --store-dsn       Storage DSN: memory://, sqlite://<path>, or badger://<path>
  --poll-interval   Poll interval (drives no loop; each reorg sweep also
                    picks up new blocks)
  --reorg-interval  Interval between reorg sweeps (e.g. 30s)
  --base-height     Height treated as already processed at startup;
                    scanning begins after it
  --log-level       Log level: debug, info, warn, error (default: info)
  --log-file        Log file path (default: stdout)
  --log-json        Output logs as JSON

Examples:
  bagtrackerd --rpc-endpoint=http://127.0.0.1:8332 --store-dsn=sqlite://./bags.db
`
	fmt.Print(usage)
}

// Load loads configuration with precedence defaults < file < flags.
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("bagtrackerd version 0.1.0")
		os.Exit(0)
	}

	cfg := Default()

	dataDir := DefaultDataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = dataDir + "/bagtrackerd.conf"
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return nil, nil, fmt.Errorf("writing default config: %w", err)
		}
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)

	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}
