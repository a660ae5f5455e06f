package types

import "time"

// Schedule is the computed set of phase boundaries for one trading date.
type Schedule struct {
	TradingDate          string
	CreatedAtUTC         time.Time
	OpenUTC              time.Time
	MidUTC               time.Time
	CloseUTC             time.Time
	HoldingsOpenUTC      time.Time
	HoldingsMidUTC       time.Time
	UniverseUTC          time.Time
	HoldingsAfterOpenMin int
	HoldingsAfterMidMin  int
	UniverseAfterCloseMin int
	MarketCloseUTCHint   time.Time
}

// Phase identifies one step of the dispatcher's canonical order.
type Phase string

const (
	PhaseOpen         Phase = "OPEN"
	PhaseHoldingsOpen Phase = "HOLDINGS_OPEN"
	PhaseMid          Phase = "MID"
	PhaseHoldingsMid  Phase = "HOLDINGS_MID"
	PhaseClose        Phase = "CLOSE"
	PhaseUniverse     Phase = "UNIVERSE"
)

// CanonicalPhaseOrder is the strict serial order phases must run in within
// a trading day.
var CanonicalPhaseOrder = []Phase{
	PhaseOpen,
	PhaseHoldingsOpen,
	PhaseMid,
	PhaseHoldingsMid,
	PhaseClose,
	PhaseUniverse,
}

// LifecycleState is one token of the process-wide lifecycle file.
type LifecycleState string

const (
	StateInitializing              LifecycleState = "initializing"
	StateProvisioning              LifecycleState = "provisioning"
	StateBootstrapping             LifecycleState = "bootstrapping"
	StateRegistration              LifecycleState = "registration"
	StateIdle                      LifecycleState = "idle"
	StateAnalyzing                 LifecycleState = "analyzing"
	StateTrading                   LifecycleState = "trading"
	StateMonitoring                LifecycleState = "monitoring"
	StateUpdating                  LifecycleState = "updating"
	StateRunning                   LifecycleState = "running"
	StateGracefulClosingPositions  LifecycleState = "graceful_closing_positions"
	StateShutdownTriggered         LifecycleState = "shutdown_triggered"
	StateError                     LifecycleState = "error"
)

// ValidLifecycleStates is the fixed set of tokens bot_state.txt may hold.
var ValidLifecycleStates = map[LifecycleState]bool{
	StateInitializing:             true,
	StateProvisioning:             true,
	StateBootstrapping:            true,
	StateRegistration:             true,
	StateIdle:                     true,
	StateAnalyzing:                true,
	StateTrading:                  true,
	StateMonitoring:               true,
	StateUpdating:                 true,
	StateRunning:                  true,
	StateGracefulClosingPositions: true,
	StateShutdownTriggered:        true,
	StateError:                    true,
}

// ControlFlag names one of the presence-based signal files.
type ControlFlag string

const (
	ControlStart    ControlFlag = "control_start"
	ControlStop     ControlFlag = "control_stop"
	ControlKill     ControlFlag = "control_kill"
	ControlTestMode ControlFlag = "test_mode"
)

// DispatcherStatus is the terminal outcome recorded for one dispatcher run.
type DispatcherStatus string

const (
	DispatchComplete DispatcherStatus = "complete"
	DispatchAborted  DispatcherStatus = "aborted"
	DispatchStopped  DispatcherStatus = "stopped"
	DispatchSkipped  DispatcherStatus = "skipped"
)

// PhaseOutcome is the per-phase disposition the dispatcher records in the
// run log.
type PhaseOutcome string

const (
	PhaseRan         PhaseOutcome = "ran"
	PhaseSkippedLate PhaseOutcome = "skipped_late"
	PhaseAborted     PhaseOutcome = "aborted"
	PhaseStopped     PhaseOutcome = "stopped"
)
