package analytics

import (
	"context"
	"testing"
	"time"

	"pipeline-crm/internal/features/deal"
)

// listOnlyRepo feeds a fixed deal list into the service; writes are unused.
type listOnlyRepo struct {
	deals []deal.Deal
}

func (r *listOnlyRepo) List(ctx context.Context, filters deal.Filters) ([]deal.Deal, error) {
	return r.deals, nil
}

func (r *listOnlyRepo) GetByID(ctx context.Context, id string) (*deal.Deal, error) {
	return nil, deal.ErrNotFound
}

func (r *listOnlyRepo) GetByClient(ctx context.Context, client string) (*deal.Deal, error) {
	return nil, nil
}

func (r *listOnlyRepo) Insert(ctx context.Context, d *deal.Deal) error { return nil }

func (r *listOnlyRepo) InsertMany(ctx context.Context, deals []deal.Deal) (int, error) {
	return 0, nil
}

func (r *listOnlyRepo) Update(ctx context.Context, id string, d *deal.Deal) error { return nil }
func (r *listOnlyRepo) Delete(ctx context.Context, id string) error               { return nil }
func (r *listOnlyRepo) Clear(ctx context.Context) error                           { return nil }

func serviceWithDeals(deals []deal.Deal, now time.Time) *AnalyticsServiceImpl {
	svc := NewAnalyticsService(&listOnlyRepo{deals: deals}).(*AnalyticsServiceImpl)
	if !now.IsZero() {
		svc.now = func() time.Time { return now }
	}
	return svc
}

func TestKPIs(t *testing.T) {
	deals := []deal.Deal{
		{Client: "A", Status: deal.StatusProspect, Amount: 10000, WeightedValue: 1000},
		{Client: "B", Status: deal.StatusNegotiation, Amount: 20000, WeightedValue: 14000},
		{Client: "C", Status: deal.StatusWon, Amount: 5000, WeightedValue: 5000},
		{Client: "D", Status: deal.StatusWonOngoing, Amount: 5000, WeightedValue: 5000},
	}

	kpis, err := serviceWithDeals(deals, time.Time{}).KPIs(context.Background(), deal.Filters{})
	if err != nil {
		t.Fatalf("KPIs: %v", err)
	}

	if kpis.TotalPipeline != 40000 || kpis.WeightedPipeline != 25000 {
		t.Errorf("pipeline = %v/%v, want 40000/25000", kpis.TotalPipeline, kpis.WeightedPipeline)
	}
	if kpis.AverageBasket != 10000 {
		t.Errorf("averageBasket = %v, want 10000", kpis.AverageBasket)
	}
	if kpis.DealCount != 4 || kpis.WonCount != 2 {
		t.Errorf("counts = %d/%d, want 4 deals and 2 won", kpis.DealCount, kpis.WonCount)
	}
	if kpis.ConversionRate != 50 {
		t.Errorf("conversionRate = %v, want 50", kpis.ConversionRate)
	}
	if kpis.WeightedFormatted != "25 000 €" {
		t.Errorf("weightedFormatted = %q, want French formatting", kpis.WeightedFormatted)
	}
}

func TestKPIsEmptyStore(t *testing.T) {
	kpis, err := serviceWithDeals(nil, time.Time{}).KPIs(context.Background(), deal.Filters{})
	if err != nil {
		t.Fatalf("KPIs: %v", err)
	}
	if kpis.DealCount != 0 || kpis.AverageBasket != 0 || kpis.ConversionRate != 0 {
		t.Errorf("empty store should yield zero KPIs: %+v", kpis)
	}
}

func TestSectors(t *testing.T) {
	deals := []deal.Deal{
		{Client: "A", Sector: "Tech", Amount: 30000, WeightedValue: 9000},
		{Client: "B", Sector: "Tech", Amount: 10000, WeightedValue: 1000},
		{Client: "C", Sector: "Finance", Amount: 50000, WeightedValue: 35000},
		{Client: "D", Amount: 2000, WeightedValue: 200},
	}

	breakdown, err := serviceWithDeals(deals, time.Time{}).Sectors(context.Background(), deal.Filters{})
	if err != nil {
		t.Fatalf("Sectors: %v", err)
	}

	if len(breakdown.Sectors) != 3 {
		t.Fatalf("got %d sectors, want 3 (including fallback)", len(breakdown.Sectors))
	}

	// Sorted by total amount descending
	if breakdown.Sectors[0].Sector != "Finance" || breakdown.Sectors[1].Sector != "Tech" {
		t.Errorf("unexpected order: %+v", breakdown.Sectors)
	}
	if breakdown.Sectors[1].DealCount != 2 || breakdown.Sectors[1].TotalAmount != 40000 {
		t.Errorf("Tech aggregate wrong: %+v", breakdown.Sectors[1])
	}
	if breakdown.Sectors[2].Sector != "Autre" {
		t.Errorf("missing sector should fall back to Autre: %+v", breakdown.Sectors[2])
	}
}

func TestSectorsTopFive(t *testing.T) {
	var deals []deal.Deal
	sectors := []string{"A", "B", "C", "D", "E", "F", "G"}
	for i, sector := range sectors {
		deals = append(deals, deal.Deal{
			Client: sector,
			Sector: sector,
			Amount: float64((len(sectors) - i) * 1000),
		})
	}

	breakdown, err := serviceWithDeals(deals, time.Time{}).Sectors(context.Background(), deal.Filters{})
	if err != nil {
		t.Fatalf("Sectors: %v", err)
	}
	if len(breakdown.Top) != 5 {
		t.Errorf("top = %d sectors, want 5", len(breakdown.Top))
	}
	if len(breakdown.Sectors) != 7 {
		t.Errorf("full list = %d sectors, want 7", len(breakdown.Sectors))
	}
}

func TestDeadlines(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	deals := []deal.Deal{
		{Client: "Late", Status: deal.StatusNegotiation, Amount: 1000, DueDate: "2026-03-10"},
		{Client: "Soon", Status: deal.StatusProspect, Amount: 2000, DueDate: "2026-03-20"},
		{Client: "Far", Status: deal.StatusProspect, Amount: 3000, DueDate: "2026-06-01"},
		{Client: "Done", Status: deal.StatusWon, Amount: 4000, DueDate: "2026-03-10"},
		{Client: "NoDate", Status: deal.StatusProspect, Amount: 5000},
		{Client: "BadDate", Status: deal.StatusProspect, Amount: 6000, DueDate: "soon"},
	}

	deadlines, err := serviceWithDeals(deals, now).Deadlines(context.Background(), deal.Filters{})
	if err != nil {
		t.Fatalf("Deadlines: %v", err)
	}

	if len(deadlines.Overdue) != 1 || deadlines.Overdue[0].Client != "Late" {
		t.Fatalf("overdue = %+v, want only Late", deadlines.Overdue)
	}
	if deadlines.Overdue[0].DaysDelta >= 0 {
		t.Errorf("overdue delta = %d, want negative", deadlines.Overdue[0].DaysDelta)
	}

	if len(deadlines.Upcoming) != 1 || deadlines.Upcoming[0].Client != "Soon" {
		t.Fatalf("upcoming = %+v, want only Soon", deadlines.Upcoming)
	}
	if got := deadlines.Upcoming[0].DaysDelta; got < 4 || got > 5 {
		t.Errorf("upcoming delta = %d, want about 5 days", got)
	}
}
