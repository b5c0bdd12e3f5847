package services

import (
	"testing"
	"time"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func TestComputeStreakConsecutiveDays(t *testing.T) {
	t.Parallel()

	now := day(t, "2025-06-10")
	dates := []time.Time{
		day(t, "2025-06-10"),
		day(t, "2025-06-09"),
		day(t, "2025-06-08"),
		// gap on 06-07
		day(t, "2025-06-06"),
	}

	if got := ComputeStreak(dates, now); got != 3 {
		t.Errorf("expected streak 3, got %d", got)
	}
}

func TestComputeStreakDeadWithoutRecentActivity(t *testing.T) {
	t.Parallel()

	now := day(t, "2025-06-10")
	dates := []time.Time{
		day(t, "2025-06-07"),
		day(t, "2025-06-06"),
	}

	if got := ComputeStreak(dates, now); got != 0 {
		t.Errorf("expected streak 0, got %d", got)
	}
}

func TestComputeStreakStartsYesterday(t *testing.T) {
	t.Parallel()

	// No solve today yet; the streak is still alive from yesterday.
	now := day(t, "2025-06-10")
	dates := []time.Time{
		day(t, "2025-06-09"),
		day(t, "2025-06-08"),
	}

	if got := ComputeStreak(dates, now); got != 2 {
		t.Errorf("expected streak 2, got %d", got)
	}
}

func TestComputeStreakEmpty(t *testing.T) {
	t.Parallel()

	if got := ComputeStreak(nil, time.Now()); got != 0 {
		t.Errorf("expected streak 0, got %d", got)
	}
}

func TestComputeStreakDuplicateTimesSameDay(t *testing.T) {
	t.Parallel()

	now := day(t, "2025-06-10").Add(15 * time.Hour)
	dates := []time.Time{
		day(t, "2025-06-10").Add(2 * time.Hour),
		day(t, "2025-06-10").Add(20 * time.Hour),
		day(t, "2025-06-09").Add(5 * time.Hour),
	}

	if got := ComputeStreak(dates, now); got != 2 {
		t.Errorf("expected streak 2, got %d", got)
	}
}

func TestCrossedMilestones(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		old  int
		new  int
		want []int
	}{
		{"six to seven fires seven", 6, 7, []int{7}},
		{"staying at seven fires nothing", 7, 7, nil},
		{"seven to eight fires nothing", 7, 8, nil},
		{"seven to fourteen fires fourteen", 7, 14, []int{14}},
		{"zero to five fires three", 0, 5, []int{3}},
		{"reset jump crosses several", 0, 30, []int{3, 7, 14, 30}},
		{"below first threshold", 1, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := CrossedMilestones(tt.old, tt.new)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMilestoneBonusTiers(t *testing.T) {
	t.Parallel()

	tiers := map[int]int{
		3:   25,
		7:   25,
		14:  50,
		30:  50,
		50:  100,
		100: 100,
		365: 200,
	}

	for threshold, want := range tiers {
		if got := MilestoneBonus(threshold); got != want {
			t.Errorf("MilestoneBonus(%d) = %d, want %d", threshold, got, want)
		}
	}
}
