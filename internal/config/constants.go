package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Matching session lifecycle windows
const (
	// A matching session with no poll for this long is considered stale
	// and completed on the next start or sweep.
	MatchingSessionStaleAfter = 30 * time.Minute

	// Only users whose matching session polled within this window are
	// eligible candidates. This is the single freshness definition for
	// the continuous flow.
	CandidateFreshness = 5 * time.Minute

	// An existing waiting/active call session between the same pair is
	// reused instead of creating a duplicate if it is younger than this.
	CallReuseWindow = 10 * time.Minute

	// Waiting/active calls whose participants stopped polling for this
	// long are cancelled by the sweeper.
	CallStaleAfter = 15 * time.Minute
)

// Candidate scan and scoring
const (
	CandidateScanLimit     = 50
	MinCompatibility       = 0.2
	PreferredInterestBonus = 0.1
	VeryActiveBonus        = 0.15 // last activity under 5 minutes
	RecentActiveBonus      = 0.10 // last activity under 10 minutes
)

// Request body cap. Signal payloads are SDP offers and ICE candidates,
// which stay well under this.
const MaxRequestBodyBytes = 64 * 1024

// Completed video sessions retained per match; older ones are purged.
const VideoSessionsKeptPerMatch = 3

// TTL on signaling mailboxes and join-tracking keys in Redis. Sessions
// clean these up explicitly on completion; the TTL is the backstop.
const SignalMailboxTTL = 15 * time.Minute

// Sliding window for the signal drain rate limit.
const SignalRateLimitWindow = time.Minute
