package dashboard

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/clubhub/internal/model"
)

// EventsOn returns the snapshot's events dated on day of month, in snapshot
// order. Event dates are display strings such as "OCT 15" or "Oct 15, 2024";
// the year is ignored.
func (d *Dashboard) EventsOn(month time.Month, day int) []model.Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snapshot == nil {
		return nil
	}

	var events []model.Event
	for _, e := range d.snapshot.Events {
		if m, dd, ok := monthDay(e.Date); ok && m == month && dd == day {
			events = append(events, e)
		}
	}
	return events
}

// DaysWithEvents returns the days of month that have at least one event, in
// ascending order.
func (d *Dashboard) DaysWithEvents(month time.Month) []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snapshot == nil {
		return nil
	}

	seen := make(map[int]bool)
	var days []int
	for _, e := range d.snapshot.Events {
		m, day, ok := monthDay(e.Date)
		if !ok || m != month || seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

// monthDay parses the month and day of a display date. The month token
// matches when it starts with the three-letter abbreviation, so "SEPT"
// is September. The day is the token's leading digits.
func monthDay(date string) (time.Month, int, bool) {
	fields := strings.Fields(date)
	if len(fields) < 2 {
		return 0, 0, false
	}

	token := strings.ToUpper(fields[0])
	var month time.Month
	for m := time.January; m <= time.December; m++ {
		if strings.HasPrefix(token, strings.ToUpper(m.String()[:3])) {
			month = m
			break
		}
	}
	if month == 0 {
		return 0, 0, false
	}

	digits := fields[1]
	n := 0
	for n < len(digits) && digits[n] >= '0' && digits[n] <= '9' {
		n++
	}
	day, err := strconv.Atoi(digits[:n])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, false
	}
	return month, day, true
}
