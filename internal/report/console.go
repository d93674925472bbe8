package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"energy_forecast/internal/evaluate"
	"energy_forecast/internal/model"
)

// PrintMetrics writes the hybrid and baseline scores as a table.
func PrintMetrics(w io.Writer, r evaluate.Report) {
	fmt.Fprintln(w, "  Held-out Accuracy:")
	fmt.Fprintf(w, "   %-16s │ %9s │ %9s │ %7s │ %7s\n", "Model", "MAE", "RMSE", "MAPE", "SMAPE")
	fmt.Fprintf(w, "  ──────────────────┼───────────┼───────────┼─────────┼────────\n")
	row := func(name string, m evaluate.Metrics) {
		fmt.Fprintf(w, "   %-16s │ %9.2f │ %9.2f │ %6.2f%% │ %6.2f%%\n", name, m.MAE, m.RMSE, m.MAPE, m.SMAPE)
	}
	row("Trend + residual", r.Hybrid)
	row("Trend only", r.Baseline)
	if r.Baseline.MAE > 0 {
		fmt.Fprintf(w, "  MAE improvement over trend only: %.1f%%\n", 100*(r.Baseline.MAE-r.Hybrid.MAE)/r.Baseline.MAE)
	}
}

// PrintRows writes evaluated rows as a table.
func PrintRows(w io.Writer, rows []model.ForecastRow) {
	fmt.Fprintf(w, "   %-16s │ %10s │ %10s │ %10s │ %10s\n", "Time", "Actual", "Trend", "Residual", "Forecast")
	fmt.Fprintf(w, "  ──────────────────┼────────────┼────────────┼────────────┼───────────\n")
	for _, r := range rows {
		fmt.Fprintf(w, "   %-16s │ %10.2f │ %10.2f │ %+10.2f │ %10.2f\n",
			r.DS.Format("2006-01-02 15:04"), r.Y, r.YHat, r.ResidualPred, r.YHatCorrected)
	}
}

// HourlyProfile is the average demand per hour of day.
type HourlyProfile struct {
	Mean  [24]float64
	Count [24]int
}

// WeekdayProfile is the average demand per day of week, Monday first.
type WeekdayProfile struct {
	Mean  [7]float64
	Count [7]int
}

// Profiles aggregates a series by hour of day and by day of week.
func Profiles(points []model.Point) (HourlyProfile, WeekdayProfile) {
	var h HourlyProfile
	var d WeekdayProfile
	for _, p := range points {
		hour := p.DS.Hour()
		dow := (int(p.DS.Weekday()) + 6) % 7
		h.Mean[hour] += p.Y
		h.Count[hour]++
		d.Mean[dow] += p.Y
		d.Count[dow]++
	}
	for i := range h.Mean {
		if h.Count[i] > 0 {
			h.Mean[i] /= float64(h.Count[i])
		}
	}
	for i := range d.Mean {
		if d.Count[i] > 0 {
			d.Mean[i] /= float64(d.Count[i])
		}
	}
	return h, d
}

// PrintHourlyProfile writes the hour-of-day profile with each hour's share
// of the daily mean.
func PrintHourlyProfile(w io.Writer, h HourlyProfile) {
	var total float64
	n := 0
	for i, m := range h.Mean {
		if h.Count[i] > 0 {
			total += m
			n++
		}
	}
	dayMean := 0.0
	if n > 0 {
		dayMean = total / float64(n)
	}

	fmt.Fprintln(w, "  Hourly Profile:")
	fmt.Fprintf(w, "   %4s │ %10s │ %7s │ %7s\n", "Hour", "Mean", "Rows", "vs Day")
	fmt.Fprintf(w, "  ──────┼────────────┼─────────┼────────\n")
	for i, m := range h.Mean {
		if h.Count[i] == 0 {
			continue
		}
		rel := 0.0
		if dayMean > 0 {
			rel = 100 * (m/dayMean - 1)
		}
		fmt.Fprintf(w, "     %02d │ %10.2f │ %7d │ %+6.1f%%\n", i, m, h.Count[i], rel)
	}
}

// PrintWeekdayProfile writes the day-of-week profile.
func PrintWeekdayProfile(w io.Writer, d WeekdayProfile) {
	fmt.Fprintln(w, "  Weekday Profile:")
	fmt.Fprintf(w, "   %-4s │ %10s │ %7s\n", "Day", "Mean", "Rows")
	fmt.Fprintf(w, "  ──────┼────────────┼────────\n")
	for i, m := range d.Mean {
		if d.Count[i] == 0 {
			continue
		}
		name := time.Weekday((i + 1) % 7).String()[:3]
		fmt.Fprintf(w, "   %-4s │ %10.2f │ %7d\n", name, m, d.Count[i])
	}
}

// ComponentRow splits one forecast into the trend model's terms and the
// residual correction.
type ComponentRow struct {
	DS         time.Time
	Trend      float64
	Daily      float64
	Weekly     float64
	Yearly     float64
	Correction float64
}

// PrintComponents writes the forecast decomposition as a table.
func PrintComponents(w io.Writer, rows []ComponentRow) {
	fmt.Fprintln(w, "  Forecast Components:")
	fmt.Fprintf(w, "   %-16s │ %10s │ %9s │ %9s │ %9s │ %10s\n", "Time", "Trend", "Daily", "Weekly", "Yearly", "Correction")
	fmt.Fprintf(w, "  ──────────────────┼────────────┼───────────┼───────────┼───────────┼───────────\n")
	for _, r := range rows {
		fmt.Fprintf(w, "   %-16s │ %10.2f │ %+9.2f │ %+9.2f │ %+9.2f │ %+10.2f\n",
			r.DS.Format("2006-01-02 15:04"), r.Trend, r.Daily, r.Weekly, r.Yearly, r.Correction)
	}
}

// PrintImportance writes how many tree splits use each feature, most used
// first. Unused features are left out.
func PrintImportance(w io.Writer, names []string, counts []int) {
	idx := make([]int, 0, len(counts))
	total := 0
	for i, c := range counts {
		if c > 0 {
			idx = append(idx, i)
			total += c
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return counts[idx[a]] > counts[idx[b]] })

	fmt.Fprintln(w, "  Residual Feature Splits:")
	fmt.Fprintf(w, "   %-16s │ %7s │ %6s\n", "Feature", "Splits", "Share")
	fmt.Fprintf(w, "  ──────────────────┼─────────┼───────\n")
	for _, i := range idx {
		name := fmt.Sprintf("feature %d", i)
		if i < len(names) {
			name = names[i]
		}
		fmt.Fprintf(w, "   %-16s │ %7d │ %5.1f%%\n", name, counts[i], 100*float64(counts[i])/float64(total))
	}
}
