// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	"regexp"
	"strings"
)

var (
	// Unicode aware whitespace and word classes; \s and \w only match
	// ASCII.
	spaceClass = `\s\v\p{Z}\x{1c}-\x{1f}\x{85}`
	stripChars = regexp.MustCompile(`[^` + spaceClass + `\p{L}\p{N}_-]+`)
	whitespace = regexp.MustCompile(`[` + spaceClass + `]+`)
)

// StripJoin removes every character that is not whitespace, a letter, a
// digit, '_' or '-', splits the rest on runs of whitespace and joins the
// pieces with divider.
func StripJoin(s, divider string) string {
	return strings.Join(whitespace.Split(stripChars.ReplaceAllString(s, ""), -1), divider)
}

// ShareProtocols returns the enabled share protocols as an upper case,
// comma separated list with no spaces, e.g. "CIFS,NFS".
func ShareProtocols(c *Config) string {
	return strings.ToUpper(StripJoin(c.ShareProtocols, ","))
}

// DebugLevel returns the oslo log level implied by the debug and verbose
// options: NONE, WARNING or DEBUG.
func DebugLevel(c *Config) string {
	if !c.Debug {
		return "NONE"
	}
	if c.Verbose {
		return "DEBUG"
	}
	return "WARNING"
}

const defaultWorkerMultiplier = 2

// Workers returns the number of API worker processes for a host with the
// given number of CPUs.
func Workers(c *Config, cpus int) int {
	multiplier := c.WorkerMultiplier
	if multiplier == 0 {
		multiplier = defaultWorkerMultiplier
	}
	if n := cpus * multiplier; n > 1 {
		return n
	}
	return 1
}
