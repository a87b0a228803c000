package models

import (
	"fmt"
	"io"
	"os"
)

type Config struct {
	Output  io.Writer
	Color   bool
	Verbose bool

	// ForceBase overrides the system's base address hint when nonzero.
	ForceBase uint64
	Bind      BindMode
	// Symbols is a file of "name address" lines fed to the host symbol map.
	Symbols string
}

func (c *Config) Init() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	return c
}

func (c *Config) Printf(format string, args ...interface{}) {
	if c == nil || c.Output == nil {
		return
	}
	fmt.Fprintf(c.Output, format, args...)
}

func (c *Config) Debugf(format string, args ...interface{}) {
	if c != nil && c.Verbose {
		c.Printf(format, args...)
	}
}
