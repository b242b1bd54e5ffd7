package board

import (
	"testing"
	"time"

	"problinx/internal/domain"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func problem(id string, reward int, createdOffset time.Duration) domain.Problem {
	return domain.Problem{
		ID:        id,
		Title:     "Problem " + id,
		Category:  "web-dev",
		Reward:    intPtr(reward),
		CreatedAt: testNow.Add(createdOffset),
	}
}

func sampleRecords() []domain.Problem {
	rewards := []int{450, 800, 600, 300, 1200, 900, 550, 750}
	records := make([]domain.Problem, len(rewards))
	for i, r := range rewards {
		records[i] = problem(string(rune('a'+i)), r, -time.Duration(i)*time.Hour)
	}
	return records
}

func TestComputeVisibleRewardHighScenario(t *testing.T) {
	f := DefaultFilters()
	f.Reward = RewardHigh
	f.Sort = SortRewardHigh

	page, total := ComputeVisible(sampleRecords(), f, testNow)
	if total != 5 {
		t.Fatalf("expected 5 high-reward matches, got %d", total)
	}
	want := []int{1200, 900, 800, 750, 600}
	for i, p := range page {
		if *p.Reward != want[i] {
			t.Fatalf("position %d: expected reward %d, got %d", i, want[i], *p.Reward)
		}
	}
}

func TestTotalMatchCountEqualsPredicateCount(t *testing.T) {
	records := sampleRecords()
	f := DefaultFilters()
	f.Reward = RewardMedium

	_, total := ComputeVisible(records, f, testNow)
	count := 0
	for _, p := range records {
		if Matches(p, f, testNow) {
			count++
		}
	}
	if total != count {
		t.Fatalf("totalMatchCount %d != predicate count %d", total, count)
	}
}

func TestRewardBucketBoundaries(t *testing.T) {
	cases := []struct {
		reward int
		bucket RewardBucket
		want   bool
	}{
		{100, RewardLow, true},
		{300, RewardLow, true},
		{300, RewardMedium, false},
		{301, RewardMedium, true},
		{500, RewardMedium, true},
		{500, RewardHigh, false},
		{501, RewardHigh, true},
		{99, RewardLow, false},
	}
	for _, tc := range cases {
		p := problem("x", tc.reward, 0)
		f := DefaultFilters()
		f.Reward = tc.bucket
		if got := Matches(p, f, testNow); got != tc.want {
			t.Errorf("reward %d bucket %s: expected %v, got %v", tc.reward, tc.bucket, tc.want, got)
		}
	}
}

func TestMissingRewardFailsBuckets(t *testing.T) {
	p := domain.Problem{ID: "none", Title: "No reward", CreatedAt: testNow}
	for _, bucket := range []RewardBucket{RewardLow, RewardMedium, RewardHigh} {
		f := DefaultFilters()
		f.Reward = bucket
		if Matches(p, f, testNow) {
			t.Errorf("missing reward should fail bucket %s", bucket)
		}
	}
	f := DefaultFilters()
	if !Matches(p, f, testNow) {
		t.Error("missing reward should pass the all bucket")
	}
}

func TestDeadlineBuckets(t *testing.T) {
	cases := []struct {
		days   int
		bucket DeadlineBucket
		want   bool
	}{
		{3, DeadlineUrgent, true},
		{7, DeadlineUrgent, true},
		{8, DeadlineUrgent, false},
		{8, DeadlineSoon, true},
		{14, DeadlineSoon, true},
		{15, DeadlineSoon, false},
		{15, DeadlineLater, true},
		{30, DeadlineLater, true},
	}
	for _, tc := range cases {
		p := problem("x", 200, 0)
		p.Deadline = timePtr(testNow.Add(time.Duration(tc.days) * 24 * time.Hour))
		f := DefaultFilters()
		f.Deadline = tc.bucket
		if got := Matches(p, f, testNow); got != tc.want {
			t.Errorf("%d days bucket %s: expected %v, got %v", tc.days, tc.bucket, tc.want, got)
		}
	}

	noDeadline := problem("x", 200, 0)
	for _, bucket := range []DeadlineBucket{DeadlineUrgent, DeadlineSoon, DeadlineLater} {
		f := DefaultFilters()
		f.Deadline = bucket
		if Matches(noDeadline, f, testNow) {
			t.Errorf("missing deadline should fail bucket %s", bucket)
		}
	}
}

func TestQueryMatchesTitleDescriptionTags(t *testing.T) {
	p := domain.Problem{
		ID:          "q",
		Title:       "Optimize Checkout Funnel",
		Description: "Reduce cart abandonment on mobile",
		Tags:        []string{"E-Commerce", "analytics"},
		CreatedAt:   testNow,
	}
	for _, q := range []string{"checkout", "CART", "e-comm", "analytics"} {
		f := DefaultFilters()
		f.Query = q
		if !Matches(p, f, testNow) {
			t.Errorf("query %q should match", q)
		}
	}
	f := DefaultFilters()
	f.Query = "blockchain"
	if Matches(p, f, testNow) {
		t.Error("query blockchain should not match")
	}
}

func TestPaginationReconstructsSortedSet(t *testing.T) {
	var records []domain.Problem
	for i := 0; i < 31; i++ {
		records = append(records, problem(string(rune('A'+i)), 100+i, -time.Duration(i)*time.Minute))
	}
	f := DefaultFilters()
	f.Sort = SortRewardLow

	_, total := ComputeVisible(records, f, testNow)
	if total != 31 {
		t.Fatalf("expected 31 matches, got %d", total)
	}
	lastPage := (total + PageSize - 1) / PageSize

	seen := map[string]int{}
	var concat []domain.Problem
	for page := 1; page <= lastPage; page++ {
		f.Page = page
		items, _ := ComputeVisible(records, f, testNow)
		if len(items) > PageSize {
			t.Fatalf("page %d longer than PageSize: %d", page, len(items))
		}
		for _, p := range items {
			seen[p.ID]++
			concat = append(concat, p)
		}
	}
	if len(concat) != total {
		t.Fatalf("concatenated pages hold %d items, expected %d", len(concat), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("record %s appeared %d times across pages", id, n)
		}
	}
	for i := 1; i < len(concat); i++ {
		if *concat[i-1].Reward > *concat[i].Reward {
			t.Fatalf("page concatenation out of order at %d", i)
		}
	}
}

func TestSortIdempotence(t *testing.T) {
	for _, key := range []SortKey{SortNewest, SortOldest, SortRewardHigh, SortRewardLow, SortDeadline, SortPopularity} {
		f := DefaultFilters()
		f.Sort = key
		once, _ := ComputeVisible(sampleRecords(), f, testNow)
		twice, _ := ComputeVisible(once, f, testNow)
		for i := range once {
			if once[i].ID != twice[i].ID {
				t.Errorf("sort %s not idempotent at position %d", key, i)
			}
		}
	}
}

func TestSortDeadlineMissingLast(t *testing.T) {
	a := problem("a", 100, 0)
	a.Deadline = timePtr(testNow.Add(48 * time.Hour))
	b := problem("b", 100, 0) // no deadline
	c := problem("c", 100, 0)
	c.Deadline = timePtr(testNow.Add(24 * time.Hour))

	f := DefaultFilters()
	f.Sort = SortDeadline
	page, _ := ComputeVisible([]domain.Problem{a, b, c}, f, testNow)
	want := []string{"c", "a", "b"}
	for i, p := range page {
		if p.ID != want[i] {
			t.Fatalf("deadline sort order: expected %v, got %s at %d", want, p.ID, i)
		}
	}
}

func TestClearingFiltersRestoresFullSet(t *testing.T) {
	records := sampleRecords()
	f := DefaultFilters()
	f.Reward = RewardHigh
	f.Page = 1
	_, narrowed := ComputeVisible(records, f, testNow)
	if narrowed == len(records) {
		t.Fatal("narrowing should reduce the match count")
	}

	f = DefaultFilters()
	page, total := ComputeVisible(records, f, testNow)
	if total != len(records) {
		t.Fatalf("cleared filters: expected %d matches, got %d", len(records), total)
	}
	if len(page) != len(records) {
		t.Fatalf("cleared filters: expected full page, got %d", len(page))
	}
}

func TestPageClamping(t *testing.T) {
	records := sampleRecords()
	f := DefaultFilters()
	f.Page = 99
	page, total := ComputeVisible(records, f, testNow)
	if total != len(records) {
		t.Fatalf("unexpected total %d", total)
	}
	if len(page) == 0 {
		t.Fatal("out-of-range page should clamp to the last page, not return empty")
	}
	if got := ClampPage(0, 30); got != 1 {
		t.Errorf("ClampPage(0,30) = %d, want 1", got)
	}
	if got := ClampPage(5, 30); got != 3 {
		t.Errorf("ClampPage(5,30) = %d, want 3", got)
	}
	if got := ClampPage(2, 0); got != 1 {
		t.Errorf("ClampPage(2,0) = %d, want 1", got)
	}
}

func TestComputeVisibleDoesNotMutateInput(t *testing.T) {
	records := sampleRecords()
	order := make([]string, len(records))
	for i, p := range records {
		order[i] = p.ID
	}
	f := DefaultFilters()
	f.Sort = SortRewardHigh
	ComputeVisible(records, f, testNow)
	for i, p := range records {
		if p.ID != order[i] {
			t.Fatalf("input slice reordered at %d", i)
		}
	}
}

func TestFormatDeadline(t *testing.T) {
	cases := []struct {
		deadline *time.Time
		want     string
	}{
		{nil, "No deadline"},
		{timePtr(testNow), "Due today"},
		{timePtr(testNow.Add(-time.Millisecond)), "Expired"},
		{timePtr(testNow.Add(12 * time.Hour)), "1 day left"},
		{timePtr(testNow.Add(25 * time.Hour)), "2 days left"},
		{timePtr(testNow.Add(10 * 24 * time.Hour)), "10 days left"},
		{timePtr(testNow.Add(-48 * time.Hour)), "Expired"},
	}
	for _, tc := range cases {
		if got := FormatDeadline(tc.deadline, testNow); got != tc.want {
			t.Errorf("FormatDeadline(%v) = %q, want %q", tc.deadline, got, tc.want)
		}
	}
}
