package scheduler

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"time"

	"tbotcore/internal/atomicio"
	"tbotcore/internal/types"
)

type scheduleDoc struct {
	TradingDate           string    `json:"trading_date"`
	CreatedAtUTC          time.Time `json:"created_at_utc"`
	OpenUTC               time.Time `json:"open_utc"`
	MidUTC                time.Time `json:"mid_utc"`
	CloseUTC              time.Time `json:"close_utc"`
	HoldingsOpenUTC       time.Time `json:"holdings_open_utc"`
	HoldingsMidUTC        time.Time `json:"holdings_mid_utc"`
	UniverseUTC           time.Time `json:"universe_utc"`
	HoldingsAfterOpenMin  int       `json:"holdings_after_open_min"`
	HoldingsAfterMidMin   int       `json:"holdings_after_mid_min"`
	UniverseAfterCloseMin int       `json:"universe_after_close_min"`
	MarketCloseUTCHint    time.Time `json:"market_close_utc_hint"`
}

func toDoc(s *types.Schedule) scheduleDoc {
	return scheduleDoc{
		TradingDate: s.TradingDate, CreatedAtUTC: s.CreatedAtUTC,
		OpenUTC: s.OpenUTC, MidUTC: s.MidUTC, CloseUTC: s.CloseUTC,
		HoldingsOpenUTC: s.HoldingsOpenUTC, HoldingsMidUTC: s.HoldingsMidUTC, UniverseUTC: s.UniverseUTC,
		HoldingsAfterOpenMin: s.HoldingsAfterOpenMin, HoldingsAfterMidMin: s.HoldingsAfterMidMin,
		UniverseAfterCloseMin: s.UniverseAfterCloseMin, MarketCloseUTCHint: s.MarketCloseUTCHint,
	}
}

func fromDoc(d scheduleDoc) *types.Schedule {
	return &types.Schedule{
		TradingDate: d.TradingDate, CreatedAtUTC: d.CreatedAtUTC,
		OpenUTC: d.OpenUTC, MidUTC: d.MidUTC, CloseUTC: d.CloseUTC,
		HoldingsOpenUTC: d.HoldingsOpenUTC, HoldingsMidUTC: d.HoldingsMidUTC, UniverseUTC: d.UniverseUTC,
		HoldingsAfterOpenMin: d.HoldingsAfterOpenMin, HoldingsAfterMidMin: d.HoldingsAfterMidMin,
		UniverseAfterCloseMin: d.UniverseAfterCloseMin, MarketCloseUTCHint: d.MarketCloseUTCHint,
	}
}

// WriteSchedule writes the computed schedule atomically as indented JSON.
func WriteSchedule(path string, s *types.Schedule) error {
	data, err := json.MarshalIndent(toDoc(s), "", "  ")
	if err != nil {
		return err
	}
	return atomicio.WriteFile(path, data, 0o644)
}

// ReadSchedule loads a previously written schedule.json.
func ReadSchedule(path string) (*types.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d scheduleDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return fromDoc(d), nil
}

// LoadHolidays reads one ISO date ("YYYY-MM-DD") per line, ignoring blank
// lines and "#"-prefixed comments; a missing file yields an empty set.
func LoadHolidays(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = true
	}
	return out, scanner.Err()
}

// WriteStatus merges extra fields into the existing status.json (creating
// it if absent) and stamps dispatcher_updated_at/supervisor_updated_at
// depending on which keys are present in extra, mirroring
// schedule_dispatcher.py's _write_status read-merge-write pattern.
func WriteStatus(path string, extra map[string]any) error {
	payload := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &payload)
	}
	for k, v := range extra {
		payload[k] = v
	}
	if _, ok := extra["dispatcher_status"]; ok {
		payload["dispatcher_updated_at"] = time.Now().UTC().Format("2006-01-02T15:04:05Z")
	}
	if _, ok := extra["supervisor_status"]; ok {
		payload["supervisor_updated_at"] = time.Now().UTC().Format("2006-01-02T15:04:05Z")
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return atomicio.WriteFile(path, data, 0o644)
}
