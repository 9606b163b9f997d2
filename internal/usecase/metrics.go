package usecase

import "context"

// MetricsSummary represents aggregated attendance insights.
type MetricsSummary struct {
	TotalRecords         int64   `json:"total_records"`
	PresentCount         int64   `json:"present_count"`
	AttendanceRate       float64 `json:"attendance_rate"`
	AverageLivenessScore float64 `json:"average_liveness_score"`
}

// GetMetricsSummary aggregates attendance metrics from persisted records.
func (uc *AttendanceUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRecords:         aggregation.TotalCount,
		PresentCount:         aggregation.PresentCount,
		AverageLivenessScore: aggregation.AverageLivenessScore,
	}

	if aggregation.TotalCount > 0 {
		summary.AttendanceRate = float64(aggregation.PresentCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
