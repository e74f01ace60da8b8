package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Schedule time handling constants.
const (
	// ScheduleSlots is the fixed slot count the vendor API requires on
	// every schedule write. Partial updates are not supported remotely;
	// missing slots are padded with a disabled placeholder.
	ScheduleSlots = 8

	// PlaceholderWindow is the cron window used for disabled padding
	// slots, matching what the mobile app sends.
	PlaceholderWindow = "00 00 * * 1,2,3,4,5,6,7"

	// slotTimeBase is the multiplier in the packed hour*256+minute
	// start/end encoding used by slot-format schedules.
	slotTimeBase = 256
)

// Schedule is one timer slot of a device's weekly programme.
//
// StartTime and EndTime are vendor cron expressions of the form
// "MM HH * * d1,d2,…" using the remote day convention (Monday=1 …
// Sunday=7). Operation selects what the slot runs (for pumps, the
// speed level).
type Schedule struct {
	ID        int    `json:"id"`
	GroupID   int    `json:"groupId"`
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Operation int    `json:"-"`
}

// ScheduleSlot is the exact wire shape of a schedule slot as sent on a
// schedule write.
type ScheduleSlot struct {
	ID           int    `json:"id"`
	GroupID      int    `json:"groupId"`
	Enabled      bool   `json:"enabled"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	StartActions struct {
		OperationName int `json:"operationName"`
	} `json:"startActions"`
}

// ConvertDaysLocalToRemote rewrites the day field of a cron expression
// from the local convention (Sunday=0 … Saturday=6) to the remote one
// (Monday=1 … Sunday=7). Days are emitted sorted, matching the mobile
// app. Expressions that do not parse are returned unchanged.
func ConvertDaysLocalToRemote(cron string) string {
	return convertCronDays(cron, func(d int) int {
		if d == 0 {
			return 7
		}
		return d
	})
}

// ConvertDaysRemoteToLocal is the inverse of ConvertDaysLocalToRemote:
// remote day 7 (Sunday) becomes local day 0, days 1–6 are unchanged.
func ConvertDaysRemoteToLocal(cron string) string {
	return convertCronDays(cron, func(d int) int {
		if d == 7 {
			return 0
		}
		return d
	})
}

// convertCronDays applies fn to each entry of the 5th cron field.
func convertCronDays(cron string, fn func(int) int) string {
	parts := strings.Fields(cron)
	if len(parts) < 5 || parts[4] == "*" {
		return cron
	}

	raw := strings.Split(parts[4], ",")
	days := make([]int, 0, len(raw))
	for _, d := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil {
			return cron
		}
		days = append(days, fn(n))
	}
	sort.Ints(days)

	out := make([]string, len(days))
	for i, d := range days {
		out[i] = strconv.Itoa(d)
	}
	parts[4] = strings.Join(out, ",")
	return strings.Join(parts, " ")
}

// ParseCronClock extracts the hour and minute from a vendor cron
// expression ("MM HH * * days").
func ParseCronClock(cron string) (hour, minute int, ok bool) {
	parts := strings.Fields(cron)
	if len(parts) < 2 {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	hour, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// CronDays extracts the day list from a vendor cron expression using
// the remote convention. A "*" day field yields all seven days.
func CronDays(cron string) []int {
	parts := strings.Fields(cron)
	if len(parts) < 5 {
		return nil
	}
	if parts[4] == "*" {
		return []int{1, 2, 3, 4, 5, 6, 7}
	}
	raw := strings.Split(parts[4], ",")
	days := make([]int, 0, len(raw))
	for _, d := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(d))
		if err != nil {
			return nil
		}
		days = append(days, n)
	}
	return days
}

// BuildCron assembles a vendor cron expression from a clock time and a
// remote-convention day list.
func BuildCron(hour, minute int, days []int) string {
	if len(days) == 0 {
		days = []int{1, 2, 3, 4, 5, 6, 7}
	}
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	out := make([]string, len(sorted))
	for i, d := range sorted {
		out[i] = strconv.Itoa(d)
	}
	return fmt.Sprintf("%02d %02d * * %s", minute, hour, strings.Join(out, ","))
}

// PadSchedules returns exactly ScheduleSlots slots: the given active
// slots followed by disabled placeholders. Slot ids are reassigned
// sequentially from 1, matching the full-set writes the remote side
// requires. Excess input slots are truncated.
func PadSchedules(schedules []Schedule) []Schedule {
	out := make([]Schedule, 0, ScheduleSlots)
	for _, s := range schedules {
		if len(out) == ScheduleSlots {
			break
		}
		s.ID = len(out) + 1
		if s.GroupID == 0 {
			s.GroupID = s.ID
		}
		out = append(out, s)
	}
	for len(out) < ScheduleSlots {
		id := len(out) + 1
		out = append(out, Schedule{
			ID:        id,
			GroupID:   id,
			Enabled:   false,
			StartTime: PlaceholderWindow,
			EndTime:   PlaceholderWindow,
		})
	}
	return out
}

// decodeScheduleList decodes the passthrough list-of-objects schedule
// form. Entries with no recognisable start time are dropped.
func decodeScheduleList(raw []any) []Schedule {
	out := make([]Schedule, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s := Schedule{}
		if n, ok := asFloat(entry["id"]); ok {
			s.ID = int(n)
		}
		if n, ok := asFloat(entry["groupId"]); ok {
			s.GroupID = int(n)
		}
		if b, ok := entry["enabled"].(bool); ok {
			s.Enabled = b
		}
		s.StartTime, _ = asString(entry["startTime"])
		s.EndTime, _ = asString(entry["endTime"])
		if actions, ok := entry["startActions"].(map[string]any); ok {
			if n, ok := asFloat(actions["operationName"]); ok {
				s.Operation = int(n)
			}
		}
		if _, _, ok := ParseCronClock(s.StartTime); !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

// slotFamilyDays maps the day keys of the slot-format dayPrograms map
// to the remote day convention.
var slotFamilyDays = map[string]int{
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
	"sunday":    7,
}

// decodeSlotSchedules decodes the packed slot schedule form used by
// slot-programmed pump models:
//
//	{"dayPrograms": {"monday":1, …},
//	 "programs": [{"id":1, "slots":[{"id":0,"start":1280,"end":1536,"mode":3}]}]}
//
// start/end are hour*256+minute. Slots with a zero window mean "no
// schedule" and are dropped rather than emitted disabled.
func decodeSlotSchedules(raw map[string]any) []Schedule {
	days := make([]int, 0, 7)
	if dp, ok := raw["dayPrograms"].(map[string]any); ok {
		for name, enabled := range dp {
			n, known := slotFamilyDays[strings.ToLower(name)]
			if !known {
				continue
			}
			if v, ok := asFloat(enabled); ok && v != 0 {
				days = append(days, n)
			}
		}
	}
	sort.Ints(days)

	programs, ok := raw["programs"].([]any)
	if !ok {
		return nil
	}

	var out []Schedule
	for _, p := range programs {
		program, ok := p.(map[string]any)
		if !ok {
			continue
		}
		programID := 0
		if n, ok := asFloat(program["id"]); ok {
			programID = int(n)
		}
		slots, ok := program["slots"].([]any)
		if !ok {
			continue
		}
		for _, s := range slots {
			slot, ok := s.(map[string]any)
			if !ok {
				continue
			}
			start, startOK := asFloat(slot["start"])
			end, endOK := asFloat(slot["end"])
			if !startOK || !endOK || (start == 0 && end == 0) {
				continue
			}
			mode := 0
			if n, ok := asFloat(slot["mode"]); ok {
				mode = int(n)
			}
			startHour, startMinute := unpackSlotTime(int(start))
			endHour, endMinute := unpackSlotTime(int(end))
			out = append(out, Schedule{
				ID:        programID,
				GroupID:   programID,
				Enabled:   len(days) > 0,
				StartTime: BuildCron(startHour, startMinute, days),
				EndTime:   BuildCron(endHour, endMinute, days),
				Operation: mode,
			})
		}
	}
	return out
}

// unpackSlotTime splits a packed hour*256+minute value.
func unpackSlotTime(packed int) (hour, minute int) {
	return packed / slotTimeBase, packed % slotTimeBase
}
