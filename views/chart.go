package views

import (
	"time"

	"whybuy-dashboard/models"
)

// ChartDays is the length of the dashboard activity chart.
const ChartDays = 7

// DayActivity is one bar of the activity chart.
type DayActivity struct {
	Date     time.Time
	Label    string
	Jobs     int
	Products int
	Percent  int
}

// ActivityChart buckets jobs by start day (UTC) over the ChartDays ending
// today. Percent scales Products against the busiest day.
func ActivityChart(jobs []models.PipelineJob, now time.Time) []DayActivity {
	today := now.UTC().Truncate(24 * time.Hour)
	days := make([]DayActivity, ChartDays)
	for i := range days {
		d := today.AddDate(0, 0, i-(ChartDays-1))
		days[i] = DayActivity{Date: d, Label: d.Format("Mon 02")}
	}

	for _, j := range jobs {
		started, ok := j.Started()
		if !ok {
			continue
		}
		idx := int(started.UTC().Truncate(24*time.Hour).Sub(days[0].Date) / (24 * time.Hour))
		if idx < 0 || idx >= ChartDays {
			continue
		}
		days[idx].Jobs++
		days[idx].Products += j.TotalProducts
	}

	peak := 0
	for _, d := range days {
		if d.Products > peak {
			peak = d.Products
		}
	}
	if peak > 0 {
		for i := range days {
			days[i].Percent = days[i].Products * 100 / peak
		}
	}
	return days
}
