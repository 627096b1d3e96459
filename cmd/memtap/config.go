package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// config carries environment defaults. Command flags override these, so a
// deployment can pin MEMTAP_TARGET and MEMTAP_SOCKET once and run the
// subcommands bare.
type config struct {
	Socket   string        `env:"MEMTAP_SOCKET" envDefault:"/tmp/memtap.sock"`
	Pid      int           `env:"MEMTAP_PID"`
	Target   string        `env:"MEMTAP_TARGET"`
	Schema   string        `env:"MEMTAP_SCHEMA"`
	Interval time.Duration `env:"MEMTAP_INTERVAL" envDefault:"1s"`
}

func loadConfig(c *config) error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
