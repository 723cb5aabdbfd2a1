package common

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

// Environment identifies which network tier a swap daemon is running against.
type Environment byte

const (
	// Development is used for local regtest/stagenet integration tests.
	Development Environment = iota
	// Stagenet runs against Bitcoin testnet and Monero stagenet.
	Stagenet
	// Mainnet runs against the real Bitcoin and Monero networks.
	Mainnet
)

// String implements fmt.Stringer.
func (e Environment) String() string {
	switch e {
	case Development:
		return "development"
	case Stagenet:
		return "stagenet"
	case Mainnet:
		return "mainnet"
	default:
		return "unknown"
	}
}

// Config holds the negotiation timeouts, default timelocks, and network
// parameters that both parties must agree on before a swap can be set up
// (spec.md §3.3, §4.3, §5).
type Config struct {
	Env Environment

	BitcoinChainParams *chaincfg.Params

	// Default relative timelocks, spec.md §3.3.
	CancelTimelock           uint32
	PunishTimelock           uint32
	RemainingRefundTimelock  uint32
	BitcoinFinalityConfirmations uint32

	// spec.md §5 timeouts.
	SetupNegotiationTimeout              time.Duration
	BitcoinLockMempoolTimeout            time.Duration
	BitcoinLockConfirmedTimeout          time.Duration
	MoneroLockRetryTimeout               time.Duration
	BitcoinBlocksTillConfirmedUpperBound uint32
	MoneroDoubleSpendSafeConfirmations   uint32
	MoneroOutputMaturityConfirmations    uint32
	LockApprovalTimeout                  time.Duration

	// RetryInitialBackoff/RetryMaxBackoff bound the exponential backoff used
	// by every "infallible" retry loop in the state machines (spec.md §7).
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
}

// ConfigDefaultsForEnv returns a fresh *Config with the defaults appropriate
// for the given Environment. Each call returns a distinct instance so
// callers may safely mutate the result (e.g. to override a single
// timelock in a test) without affecting other callers.
func ConfigDefaultsForEnv(env Environment) *Config {
	cfg := &Config{
		Env:                                   env,
		RetryInitialBackoff:                   50 * time.Millisecond,
		RetryMaxBackoff:                       5 * time.Second,
		SetupNegotiationTimeout:               120 * time.Second,
		MoneroDoubleSpendSafeConfirmations:    2,
		MoneroOutputMaturityConfirmations:     10,
		BitcoinBlocksTillConfirmedUpperBound:  3,
		LockApprovalTimeout:                   3 * time.Minute,
	}

	switch env {
	case Development:
		cfg.BitcoinChainParams = &chaincfg.RegressionNetParams
		cfg.CancelTimelock = 12
		cfg.PunishTimelock = 6
		cfg.RemainingRefundTimelock = 6
		cfg.BitcoinFinalityConfirmations = 1
		cfg.BitcoinLockMempoolTimeout = 30 * time.Second
		cfg.BitcoinLockConfirmedTimeout = time.Minute
		cfg.MoneroLockRetryTimeout = time.Minute
	case Stagenet:
		cfg.BitcoinChainParams = &chaincfg.TestNet3Params
		cfg.CancelTimelock = 72
		cfg.PunishTimelock = 72
		cfg.RemainingRefundTimelock = 72
		cfg.BitcoinFinalityConfirmations = 3
		cfg.BitcoinLockMempoolTimeout = 5 * time.Minute
		cfg.BitcoinLockConfirmedTimeout = time.Hour
		cfg.MoneroLockRetryTimeout = 30 * time.Minute
	case Mainnet:
		cfg.BitcoinChainParams = &chaincfg.MainNetParams
		cfg.CancelTimelock = 144
		cfg.PunishTimelock = 144
		cfg.RemainingRefundTimelock = 144
		cfg.BitcoinFinalityConfirmations = 3
		cfg.BitcoinLockMempoolTimeout = 10 * time.Minute
		cfg.BitcoinLockConfirmedTimeout = 2 * time.Hour
		cfg.MoneroLockRetryTimeout = time.Hour
	}

	return cfg
}
