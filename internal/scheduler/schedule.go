// Package scheduler computes daily trading-phase schedules and implements
// the dispatcher's lateness/control-flag decision logic, grounded on
// runtime/schedule_dispatcher.py.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tbotcore/internal/config"
	"tbotcore/internal/errs"
	"tbotcore/internal/types"
)

// parseHHMM parses a "HH:MM" string into an (hour, minute) pair.
func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, &errs.ValidationError{Subject: "HH:MM", Msg: fmt.Sprintf("malformed value %q", s)}
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, &errs.ValidationError{Subject: "HH:MM", Msg: fmt.Sprintf("invalid hour in %q", s)}
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, &errs.ValidationError{Subject: "HH:MM", Msg: fmt.Sprintf("invalid minute in %q", s)}
	}
	return h, m, nil
}

func atHHMM(date time.Time, hhmm string) (time.Time, error) {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, time.UTC), nil
}

// ComputeSchedule builds the phase boundary timestamps for tradingDate
// (any time.Time; only its UTC calendar date is used) from cfg, mirroring
// the original's schedule-builder: configured wall-clock times plus
// configured minute offsets for the holdings/universe phases.
func ComputeSchedule(cfg *config.Config, tradingDate time.Time, now time.Time) (*types.Schedule, error) {
	date := tradingDate.UTC()

	openUTC, err := atHHMM(date, cfg.OpenHHMM)
	if err != nil {
		return nil, err
	}
	midUTC, err := atHHMM(date, cfg.MidHHMM)
	if err != nil {
		return nil, err
	}
	closeUTC, err := atHHMM(date, cfg.CloseHHMM)
	if err != nil {
		return nil, err
	}
	marketCloseUTC, err := atHHMM(date, cfg.MarketCloseHHMM)
	if err != nil {
		return nil, err
	}

	return &types.Schedule{
		TradingDate:           date.Format("2006-01-02"),
		CreatedAtUTC:          now.UTC(),
		OpenUTC:               openUTC,
		MidUTC:                midUTC,
		CloseUTC:              closeUTC,
		HoldingsOpenUTC:       openUTC.Add(time.Duration(cfg.HoldOpenMin) * time.Minute),
		HoldingsMidUTC:        midUTC.Add(time.Duration(cfg.HoldMidMin) * time.Minute),
		UniverseUTC:           closeUTC.Add(time.Duration(cfg.UnivAfterCloseMin) * time.Minute),
		HoldingsAfterOpenMin:  cfg.HoldOpenMin,
		HoldingsAfterMidMin:   cfg.HoldMidMin,
		UniverseAfterCloseMin: cfg.UnivAfterCloseMin,
		MarketCloseUTCHint:    marketCloseUTC,
	}, nil
}

var weekdayTokens = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// IsTradingDay reports whether date's weekday is in cfg.TradingDays and
// date is not listed in holidays (a set of "YYYY-MM-DD" strings).
func IsTradingDay(cfg *config.Config, date time.Time, holidays map[string]bool) bool {
	token := weekdayTokens[date.UTC().Weekday()]
	allowed := false
	for _, d := range cfg.TradingDays {
		if strings.EqualFold(strings.TrimSpace(d), token) {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if holidays[date.UTC().Format("2006-01-02")] {
		return false
	}
	return true
}
