package analytics

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCompute_RunRateScenario(t *testing.T) {
	// 10 days elapsed in a 30-day month, 500 spent.
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	txs := []*domain.Transaction{
		{AmountEUR: dec("300"), Date: now.AddDate(0, 0, -5)},
		{AmountEUR: dec("200"), Date: now.AddDate(0, 0, -2)},
	}

	m := Compute(txs, nil, now, dec("10000"))

	if m.DayOfMonth != 10 || m.DaysInMonth != 30 {
		t.Fatalf("calendar = %d/%d, want 10/30", m.DayOfMonth, m.DaysInMonth)
	}
	if !m.SpentMTD.Equal(dec("500")) {
		t.Errorf("spentMTD = %s, want 500", m.SpentMTD)
	}
	if !m.DailyRunRate.Equal(dec("50")) {
		t.Errorf("dailyRunRate = %s, want 50", m.DailyRunRate)
	}
	if !m.ProjectedEOM.Equal(dec("1500")) {
		t.Errorf("projectedEOM = %s, want 1500", m.ProjectedEOM)
	}
}

func TestCompute_PercentUsedAndRunway(t *testing.T) {
	now := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	txs := []*domain.Transaction{{AmountEUR: dec("500")}}
	buckets := []*domain.Bucket{
		{ID: "b1", Allocated: dec("1000"), Period: domain.PeriodMonthly},
		{ID: "b2", Allocated: dec("9999"), Period: domain.PeriodAnnual}, // annual buckets excluded
	}

	m := Compute(txs, buckets, now, dec("7500"))

	if !m.TotalMonthlyBudget.Equal(dec("1000")) {
		t.Errorf("totalMonthlyBudget = %s, want 1000", m.TotalMonthlyBudget)
	}
	if m.PercentUsed != 50 {
		t.Errorf("percentUsed = %v, want 50", m.PercentUsed)
	}
	// Runway: 7500 / (50 * 30) = 5 months.
	if float64(m.RunwayMonths) != 5 {
		t.Errorf("runwayMonths = %v, want 5", m.RunwayMonths)
	}
}

func TestCompute_ZeroSpendMeansInfiniteRunway(t *testing.T) {
	now := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	m := Compute(nil, nil, now, dec("1000"))

	if !m.RunwayMonths.IsUnbounded() {
		t.Errorf("runwayMonths = %v, want +Inf", m.RunwayMonths)
	}
	if m.PercentUsed != 0 {
		t.Errorf("percentUsed = %v, want 0 with no budget", m.PercentUsed)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(payload), `"runway_months":"inf"`) {
		t.Errorf("payload runway = %s, want \"inf\"", payload)
	}
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name             string
		percentUsed      float64
		projectedPercent float64
		runwayMonths     float64
		want             int
	}{
		{"healthy", 40, 60, 12, 100},
		{"slightly over budget", 110, 90, 12, 80},
		{"over budget capped at 50", 500, 90, 12, 50},
		{"projected overrun", 90, 120, 12, 70},
		{"projected overrun capped at 30", 90, 400, 12, 70},
		{"short runway", 40, 60, 2, 80},
		{"medium runway", 40, 60, 4.5, 90},
		{"everything wrong floors at 0", 500, 400, 1, 0},
		{"rounding", 101, 90, 12, 98},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HealthScore(tt.percentUsed, tt.projectedPercent, tt.runwayMonths)
			if got != tt.want {
				t.Errorf("HealthScore(%v, %v, %v) = %d, want %d",
					tt.percentUsed, tt.projectedPercent, tt.runwayMonths, got, tt.want)
			}
		})
	}
}

func TestHealthScore_Bounds(t *testing.T) {
	used := []float64{0, 50, 99, 100, 101, 150, 1000, 1e9}
	projected := []float64{0, 80, 100, 130, 500, 1e9}
	runway := []float64{0, 0.5, 2.9, 3, 5.9, 6, 100, math.Inf(1)}
	for _, u := range used {
		for _, p := range projected {
			for _, r := range runway {
				score := HealthScore(u, p, r)
				if score < 0 || score > 100 {
					t.Fatalf("HealthScore(%v, %v, %v) = %d, out of [0,100]", u, p, r, score)
				}
			}
		}
	}
}

func TestTopCategories(t *testing.T) {
	txs := []*domain.Transaction{
		{AmountEUR: dec("300"), Category: "Courses"},
		{AmountEUR: dec("100"), Category: "Courses"},
		{AmountEUR: dec("250"), Category: "Loyer"},
		{AmountEUR: dec("50"), Category: ""},
		{AmountEUR: dec("40"), Category: "Transport"},
		{AmountEUR: dec("30"), Category: "Loisirs"},
		{AmountEUR: dec("20"), Category: "Santé"},
		{AmountEUR: dec("10"), Category: "Divers"},
	}

	got := TopCategories(txs, 5)
	if len(got) != 5 {
		t.Fatalf("TopCategories returned %d rows, want 5", len(got))
	}
	if got[0].Category != "Courses" || !got[0].Spent.Equal(dec("400")) {
		t.Errorf("top = %+v, want Courses 400", got[0])
	}
	if got[1].Category != "Loyer" {
		t.Errorf("second = %q, want Loyer", got[1].Category)
	}
	if got[2].Category != UncategorizedLabel {
		t.Errorf("third = %q, want %q", got[2].Category, UncategorizedLabel)
	}
	if got[0].PercentOfTotal != 50 {
		t.Errorf("Courses percentOfTotal = %v, want 50", got[0].PercentOfTotal)
	}
}

func TestBudgetVsActual(t *testing.T) {
	buckets := []*domain.Bucket{
		{ID: "b1", Name: "Courses", Allocated: dec("400"), Spent: dec("100"), Period: domain.PeriodMonthly},
		{ID: "b2", Name: "Loisirs", Allocated: dec("100"), Spent: dec("85"), Period: domain.PeriodMonthly},
		{ID: "b3", Name: "Loyer", Allocated: dec("800"), Spent: dec("800"), Period: domain.PeriodMonthly},
		{ID: "b4", Name: "Vacances", Allocated: dec("2000"), Spent: dec("0"), Period: domain.PeriodAnnual},
	}

	got := BudgetVsActual(buckets)
	if len(got) != 3 {
		t.Fatalf("BudgetVsActual returned %d rows, want 3 (annual excluded)", len(got))
	}

	byID := make(map[string]BucketStatus)
	for _, bs := range got {
		byID[bs.BucketID] = bs
	}
	if byID["b1"].Status != BucketOK {
		t.Errorf("b1 status = %q, want ok", byID["b1"].Status)
	}
	if byID["b2"].Status != BucketWarning {
		t.Errorf("b2 status = %q, want warning", byID["b2"].Status)
	}
	if byID["b3"].Status != BucketOver {
		t.Errorf("b3 status = %q, want over", byID["b3"].Status)
	}
	if !byID["b1"].Remaining.Equal(dec("300")) {
		t.Errorf("b1 remaining = %s, want 300", byID["b1"].Remaining)
	}
}
