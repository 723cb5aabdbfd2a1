package common

import (
	logging "github.com/ipfs/go-log"
)

// subsystems lists the logger names SetLogLevels configures, including every
// package-scoped logger this module registers, so that they can all be set
// at once from a single CLI flag or config value, the way the teacher's
// swapd daemon does.
var subsystems = []string{
	"common",
	"coins",
	"dleq",
	"adaptor",
	"monero",
	"monero-crypto",
	"txbuilder",
	"backend",
	"db",
	"net",
	"setup",
	"channels",
	"maker",
	"taker",
	"swap-manager",
	"swapd",
}

// SetLogLevels sets the log level (e.g. "debug", "info", "warn", "error")
// for every subsystem logger registered by this module.
func SetLogLevels(level string) {
	for _, subsystem := range subsystems {
		_ = logging.SetLogLevel(subsystem, level)
	}
}

// NewLogger returns a package-scoped logger, matching the teacher's
// `log = logging.Logger("monero")` convention.
func NewLogger(subsystem string) logging.EventLogger {
	return logging.Logger(subsystem)
}
