package services

import "time"

// milestoneThresholds are the streak lengths that pay a one-time bonus.
var milestoneThresholds = []int{3, 7, 14, 30, 50, 100, 365}

// ComputeStreak derives the consecutive-day solving streak from the
// set of UTC dates carrying at least one accepted submission. A streak
// is alive only if it includes today or yesterday.
func ComputeStreak(dates []time.Time, now time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	days := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		days[toDay(d)] = true
	}

	today := toDay(now)
	yesterday := today.AddDate(0, 0, -1)

	var cursor time.Time
	switch {
	case days[today]:
		cursor = today
	case days[yesterday]:
		cursor = yesterday
	default:
		return 0
	}

	streak := 0
	for days[cursor] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

func toDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CrossedMilestones lists thresholds the streak climbed strictly past
// in this update, in ascending order. The durable once-per-threshold
// guarantee lives in the milestone claim, not here.
func CrossedMilestones(oldStreak, newStreak int) []int {
	var crossed []int
	for _, t := range milestoneThresholds {
		if oldStreak < t && newStreak >= t {
			crossed = append(crossed, t)
		}
	}
	return crossed
}

// MilestoneBonus pays more for longer streaks.
func MilestoneBonus(threshold int) int {
	switch {
	case threshold <= 7:
		return 25
	case threshold <= 30:
		return 50
	case threshold <= 100:
		return 100
	default:
		return 200
	}
}
