// Package board computes the visible page of the problem listing: it
// filters, sorts, and paginates an in-memory slice of problems against
// user-selected filters. Everything here is pure; callers own the record
// fetch and pass "now" explicitly.
package board

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"problinx/internal/domain"
)

// PageSize is the fixed number of problems per listing page.
const PageSize = 12

type RewardBucket string

const (
	RewardAll    RewardBucket = "all"
	RewardLow    RewardBucket = "low"    // 100-300 tokens
	RewardMedium RewardBucket = "medium" // 300-500 tokens
	RewardHigh   RewardBucket = "high"   // 500+ tokens
)

type DeadlineBucket string

const (
	DeadlineAll    DeadlineBucket = "all"
	DeadlineUrgent DeadlineBucket = "urgent" // due in 7 days
	DeadlineSoon   DeadlineBucket = "soon"   // due in 8-14 days
	DeadlineLater  DeadlineBucket = "later"  // due in 15+ days
)

type SortKey string

const (
	SortNewest     SortKey = "newest"
	SortOldest     SortKey = "oldest"
	SortRewardHigh SortKey = "reward-high"
	SortRewardLow  SortKey = "reward-low"
	SortDeadline   SortKey = "deadline"
	SortPopularity SortKey = "popularity"
)

// FilterState is the transient listing selection. The zero value is not
// meaningful; use DefaultFilters.
type FilterState struct {
	Category string
	Reward   RewardBucket
	Deadline DeadlineBucket
	Query    string
	Sort     SortKey
	Page     int // 1-based
}

// DefaultFilters returns the initial listing state: everything visible,
// newest first, page one.
func DefaultFilters() FilterState {
	return FilterState{
		Category: "all",
		Reward:   RewardAll,
		Deadline: DeadlineAll,
		Sort:     SortNewest,
		Page:     1,
	}
}

func ValidRewardBucket(b RewardBucket) bool {
	switch b {
	case RewardAll, RewardLow, RewardMedium, RewardHigh:
		return true
	}
	return false
}

func ValidDeadlineBucket(b DeadlineBucket) bool {
	switch b {
	case DeadlineAll, DeadlineUrgent, DeadlineSoon, DeadlineLater:
		return true
	}
	return false
}

func ValidSortKey(k SortKey) bool {
	switch k {
	case SortNewest, SortOldest, SortRewardHigh, SortRewardLow, SortDeadline, SortPopularity:
		return true
	}
	return false
}

// ComputeVisible filters records by f, sorts the matches stably by f.Sort,
// and returns the clamped f.Page slice of the result plus the total match
// count. Neither records nor f is mutated, and the same inputs with the
// same now always produce the same output. No matches yields an empty
// page, never an error.
func ComputeVisible(records []domain.Problem, f FilterState, now time.Time) ([]domain.Problem, int) {
	var matched []domain.Problem
	for _, p := range records {
		if Matches(p, f, now) {
			matched = append(matched, p)
		}
	}
	sortProblems(matched, f.Sort)

	total := len(matched)
	page := ClampPage(f.Page, total)
	start := (page - 1) * PageSize
	if start >= total {
		return []domain.Problem{}, total
	}
	end := start + PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// ClampPage forces page into [1, ceil(total/PageSize)], with a minimum of
// one page even when there are no matches.
func ClampPage(page, total int) int {
	if page < 1 {
		page = 1
	}
	last := (total + PageSize - 1) / PageSize
	if last < 1 {
		last = 1
	}
	if page > last {
		return last
	}
	return page
}

// Matches reports whether p satisfies every active predicate of f.
func Matches(p domain.Problem, f FilterState, now time.Time) bool {
	return matchesCategory(p, f.Category) &&
		matchesQuery(p, f.Query) &&
		matchesReward(p, f.Reward) &&
		matchesDeadline(p, f.Deadline, now)
}

func matchesCategory(p domain.Problem, category string) bool {
	return category == "" || category == "all" || p.Category == category
}

// matchesQuery is a case-insensitive substring match over title,
// description, and each tag. Not tokenized.
func matchesQuery(p domain.Problem, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Description), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// matchesReward compares the token reward against fixed bucket edges:
// low=[100,300], medium=(300,500], high=(500,inf). A missing reward counts
// as zero and fails every non-"all" bucket.
func matchesReward(p domain.Problem, bucket RewardBucket) bool {
	if bucket == "" || bucket == RewardAll {
		return true
	}
	reward := 0
	if p.Reward != nil {
		reward = *p.Reward
	}
	switch bucket {
	case RewardLow:
		return reward >= 100 && reward <= 300
	case RewardMedium:
		return reward > 300 && reward <= 500
	case RewardHigh:
		return reward > 500
	}
	return false
}

// matchesDeadline buckets by ceiling days remaining: urgent <=7,
// soon 8-14, later >14. A missing deadline fails every non-"all" bucket.
func matchesDeadline(p domain.Problem, bucket DeadlineBucket, now time.Time) bool {
	if bucket == "" || bucket == DeadlineAll {
		return true
	}
	if p.Deadline == nil {
		return false
	}
	days := DaysRemaining(*p.Deadline, now)
	switch bucket {
	case DeadlineUrgent:
		return days <= 7
	case DeadlineSoon:
		return days > 7 && days <= 14
	case DeadlineLater:
		return days > 14
	}
	return false
}

// DaysRemaining is ceil((deadline-now)/24h) on the millisecond difference.
// Calendar-insensitive: DST shifts are not accounted for, which is fine
// for a display label.
func DaysRemaining(deadline, now time.Time) int {
	diff := deadline.Sub(now).Milliseconds()
	const dayMillis = 24 * 60 * 60 * 1000
	if diff >= 0 {
		return int((diff + dayMillis - 1) / dayMillis)
	}
	return -int((-diff + dayMillis - 1) / dayMillis)
}

// FormatDeadline renders the listing label for a deadline.
func FormatDeadline(deadline *time.Time, now time.Time) string {
	if deadline == nil {
		return "No deadline"
	}
	days := DaysRemaining(*deadline, now)
	switch {
	case days < 0:
		return "Expired"
	case days == 0:
		return "Due today"
	case days == 1:
		return "1 day left"
	default:
		return strconv.Itoa(days) + " days left"
	}
}

func sortProblems(items []domain.Problem, key SortKey) {
	less := lessFunc(key)
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func lessFunc(key SortKey) func(a, b domain.Problem) bool {
	switch key {
	case SortOldest:
		return func(a, b domain.Problem) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortRewardHigh:
		return func(a, b domain.Problem) bool { return rewardOrZero(a) > rewardOrZero(b) }
	case SortRewardLow:
		return func(a, b domain.Problem) bool { return rewardOrZero(a) < rewardOrZero(b) }
	case SortDeadline:
		// ascending; missing deadlines sort after every present one
		return func(a, b domain.Problem) bool {
			switch {
			case a.Deadline == nil:
				return false
			case b.Deadline == nil:
				return true
			default:
				return a.Deadline.Before(*b.Deadline)
			}
		}
	case SortPopularity:
		return func(a, b domain.Problem) bool { return a.Views > b.Views }
	default: // SortNewest
		return func(a, b domain.Problem) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
}

func rewardOrZero(p domain.Problem) int {
	if p.Reward == nil {
		return 0
	}
	return *p.Reward
}
