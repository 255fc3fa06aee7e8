package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration overrides from a .conf file.
// Format: key = value (one per line, # for comments). A missing file is
// not an error — it simply yields no overrides.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration values to cfg.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "rpc.endpoint":
		cfg.RPC.Endpoint = value
	case "rpc.user":
		cfg.RPC.User = value
	case "rpc.pass":
		cfg.RPC.Pass = value
	case "store.dsn":
		cfg.StoreDSN = value
	case "poll.interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.PollInterval = d
	case "poll.reorg_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.ReorgSweepInterval = d
	case "base_height":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.BaseHeight = n
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	default:
		// Unknown keys are ignored.
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default config file to path.
func WriteDefaultConfig(path string) error {
	content := `# bagtrackerd configuration
#
# key = value, one per line, # for comments.

# Remote node JSON-RPC endpoint and credentials.
rpc.endpoint = http://127.0.0.1:8332
# rpc.user =
# rpc.pass =

# Storage backend: memory://, sqlite://<path>, or badger://<path>
store.dsn = memory://

# poll.interval drives no loop; the reorg sweep, run every
# poll.reorg_interval, also picks up new blocks.
poll.interval = 30s
poll.reorg_interval = 30s

# Height treated as already processed at startup; scanning begins after it.
base_height = 0

# Logging.
log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
