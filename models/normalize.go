package models

import (
	"fmt"
	"sort"
	"time"
)

// Anomaly flags a structurally valid data point whose values look wrong.
// Flagged records are still published; the platform stays authoritative
// for its own data.
type Anomaly struct {
	Record TrafficRecord
	Reason string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s %s %s: %s",
		a.Record.Repository, a.Record.Kind, a.Record.Date.Format(DateLayout), a.Reason)
}

// Normalize maps a raw daily series onto dated records for one repository.
// Exactly one record per point, date ascending; no aggregation beyond the
// platform's own daily bucketing.
func Normalize(repo RepositoryRef, series TrafficSeries) ([]TrafficRecord, []Anomaly) {
	records := make([]TrafficRecord, 0, len(series.Points))
	var anomalies []Anomaly
	for _, p := range series.Points {
		rec := TrafficRecord{
			Repository: repo,
			Kind:       series.Kind,
			Date:       p.Date.UTC().Truncate(24 * time.Hour),
			Count:      p.Count,
			Uniques:    p.Uniques,
		}
		records = append(records, rec)
		if reason := anomalyReason(rec); reason != "" {
			anomalies = append(anomalies, Anomaly{Record: rec, Reason: reason})
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records, anomalies
}

func anomalyReason(rec TrafficRecord) string {
	switch {
	case rec.Count < 0 || rec.Uniques < 0:
		return "negative values"
	case rec.Uniques > rec.Count:
		return "uniques exceed count"
	}
	return ""
}
