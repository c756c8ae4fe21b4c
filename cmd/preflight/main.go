// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/hamed0406/statusmonitor/internal/config"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	pflag.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "path to the monitoring config file")
	pflag.Parse()

	if !check(os.Stdout, os.Stderr, cfg) {
		os.Exit(1)
	}
}

// check validates the settings and the sites file, printing one line per
// finding. It reports false when any finding is fatal.
func check(stdout, stderr io.Writer, cfg config.Config) bool {
	passed := true
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		passed = false
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	mon, err := config.LoadSites(cfg.ConfigFile)
	if err != nil {
		fail(fmt.Sprintf("%s: %v", cfg.ConfigFile, err))
	} else {
		ok(fmt.Sprintf("%s: %d sites, check every %s, %d concurrent", cfg.ConfigFile, len(mon.Targets), mon.CheckInterval, mon.MaxConcurrentChecks))
		if mon.RequestTimeout >= mon.CheckInterval {
			warn("request_timeout is not shorter than check_interval; sweeps may overrun")
		}
	}

	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		fail(fmt.Sprintf("API_ADDR %q is not host:port", cfg.Addr))
	} else {
		ok("API_ADDR=" + cfg.Addr)
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			fail("STORE_DRIVER=postgres but DATABASE_URL is empty")
		} else {
			ok("DATABASE_URL present")
		}
	case config.DriverSQLite:
		ok("sqlite store at " + cfg.DatabasePath)
	case config.DriverMemory:
		warn("STORE_DRIVER=memory: state and history are lost on restart")
	default:
		fail(fmt.Sprintf("unknown STORE_DRIVER %q (sqlite|postgres|memory)", cfg.StoreDriver))
	}

	if cfg.SlackWebhook == "" && len(cfg.KafkaBrokers) == 0 {
		warn("no SLACK_WEBHOOK_URL or KAFKA_BROKERS: transitions will not be notified")
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; browsers on other origins will be blocked by CORS")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if passed {
		ok("preflight passed")
	}
	return passed
}
