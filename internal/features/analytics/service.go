package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"pipeline-crm/internal/features/deal"
	"pipeline-crm/pkg/utils"
)

// upcomingWindowDays bounds the "due soon" deadline list.
const upcomingWindowDays = 30

type KPIs struct {
	TotalPipeline          float64 `json:"totalPipeline"`
	TotalPipelineFormatted string  `json:"totalPipelineFormatted"`
	WeightedPipeline       float64 `json:"weightedPipeline"`
	WeightedFormatted      string  `json:"weightedFormatted"`
	AverageBasket          float64 `json:"averageBasket"`
	AverageFormatted       string  `json:"averageFormatted"`
	DealCount              int     `json:"dealCount"`
	WonCount               int     `json:"wonCount"`
	ConversionRate         float64 `json:"conversionRate"`
}

type SectorStat struct {
	Sector        string  `json:"sector"`
	DealCount     int     `json:"dealCount"`
	TotalAmount   float64 `json:"totalAmount"`
	WeightedValue float64 `json:"weightedValue"`
}

type SectorBreakdown struct {
	Sectors []SectorStat `json:"sectors"`
	// Top holds the five largest sectors by total amount, for chart display.
	Top []SectorStat `json:"top"`
}

type Deadline struct {
	Client    string  `json:"client"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	DueDate   string  `json:"dueDate"`
	DaysDelta int     `json:"daysDelta"`
}

type Deadlines struct {
	Overdue  []Deadline `json:"overdue"`
	Upcoming []Deadline `json:"upcoming"`
}

type AnalyticsService interface {
	KPIs(ctx context.Context, filters deal.Filters) (*KPIs, error)
	Sectors(ctx context.Context, filters deal.Filters) (*SectorBreakdown, error)
	Deadlines(ctx context.Context, filters deal.Filters) (*Deadlines, error)
}

type AnalyticsServiceImpl struct {
	DealRepo deal.DealRepository

	// now is swapped in tests to pin deadline math to a fixed date.
	now func() time.Time
}

func NewAnalyticsService(dealRepo deal.DealRepository) AnalyticsService {
	return &AnalyticsServiceImpl{
		DealRepo: dealRepo,
		now:      time.Now,
	}
}

func (s *AnalyticsServiceImpl) KPIs(ctx context.Context, filters deal.Filters) (*KPIs, error) {
	deals, err := s.DealRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	kpis := &KPIs{DealCount: len(deals)}
	for _, d := range deals {
		kpis.TotalPipeline += d.Amount
		kpis.WeightedPipeline += d.WeightedValue
		if d.Status == deal.StatusWon || d.Status == deal.StatusWonOngoing {
			kpis.WonCount++
		}
	}

	if kpis.DealCount > 0 {
		kpis.AverageBasket = round2(kpis.TotalPipeline / float64(kpis.DealCount))
		kpis.ConversionRate = round2(float64(kpis.WonCount) / float64(kpis.DealCount) * 100)
	}
	kpis.TotalPipeline = round2(kpis.TotalPipeline)
	kpis.WeightedPipeline = round2(kpis.WeightedPipeline)

	kpis.TotalPipelineFormatted = utils.FormatCurrency(kpis.TotalPipeline)
	kpis.WeightedFormatted = utils.FormatCurrency(kpis.WeightedPipeline)
	kpis.AverageFormatted = utils.FormatCurrency(kpis.AverageBasket)

	return kpis, nil
}

func (s *AnalyticsServiceImpl) Sectors(ctx context.Context, filters deal.Filters) (*SectorBreakdown, error) {
	deals, err := s.DealRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	bySector := map[string]*SectorStat{}
	for _, d := range deals {
		sector := d.Sector
		if sector == "" {
			sector = "Autre"
		}
		stat, ok := bySector[sector]
		if !ok {
			stat = &SectorStat{Sector: sector}
			bySector[sector] = stat
		}
		stat.DealCount++
		stat.TotalAmount = round2(stat.TotalAmount + d.Amount)
		stat.WeightedValue = round2(stat.WeightedValue + d.WeightedValue)
	}

	sectors := make([]SectorStat, 0, len(bySector))
	for _, stat := range bySector {
		sectors = append(sectors, *stat)
	}
	sort.Slice(sectors, func(i, j int) bool {
		if sectors[i].TotalAmount != sectors[j].TotalAmount {
			return sectors[i].TotalAmount > sectors[j].TotalAmount
		}
		return sectors[i].Sector < sectors[j].Sector
	})

	top := sectors
	if len(top) > 5 {
		top = top[:5]
	}

	return &SectorBreakdown{Sectors: sectors, Top: top}, nil
}

func (s *AnalyticsServiceImpl) Deadlines(ctx context.Context, filters deal.Filters) (*Deadlines, error) {
	deals, err := s.DealRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	today := s.now().Truncate(24 * time.Hour)
	result := &Deadlines{Overdue: []Deadline{}, Upcoming: []Deadline{}}

	for _, d := range deals {
		if d.DueDate == "" {
			continue
		}
		// Won deals are done, their deadlines no longer matter
		if d.Status == deal.StatusWon || d.Status == deal.StatusWonOngoing {
			continue
		}
		due, err := time.Parse("2006-01-02", d.DueDate)
		if err != nil {
			continue
		}

		delta := int(due.Sub(today).Hours() / 24)
		entry := Deadline{
			Client:    d.Client,
			Status:    d.Status,
			Amount:    d.Amount,
			DueDate:   d.DueDate,
			DaysDelta: delta,
		}

		switch {
		case delta < 0:
			result.Overdue = append(result.Overdue, entry)
		case delta <= upcomingWindowDays:
			result.Upcoming = append(result.Upcoming, entry)
		}
	}

	sort.Slice(result.Overdue, func(i, j int) bool {
		return result.Overdue[i].DueDate < result.Overdue[j].DueDate
	})
	sort.Slice(result.Upcoming, func(i, j int) bool {
		return result.Upcoming[i].DueDate < result.Upcoming[j].DueDate
	})

	return result, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
