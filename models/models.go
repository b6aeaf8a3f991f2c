// Package models defines the core data structures used throughout the tracker.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day form used for record dates in logs and notes.
const DateLayout = "2006-01-02"

// MetricKind names one of the two traffic series the platform exposes.
type MetricKind string

const (
	MetricClones MetricKind = "clones"
	MetricViews  MetricKind = "views"
)

// RepositoryRef identifies a tracked repository as an owner/name pair.
type RepositoryRef struct {
	Owner string
	Name  string
}

// ParseRepositoryRef parses a single "owner/name" entry. Both parts must be
// non-empty and the entry must contain exactly one slash.
func ParseRepositoryRef(s string) (RepositoryRef, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepositoryRef{}, NewError(KindConfiguration, "parse repository",
			fmt.Errorf("invalid repository format %q, expected owner/name", s))
	}
	return RepositoryRef{Owner: parts[0], Name: parts[1]}, nil
}

// ParseRepositoryList splits a semicolon-separated repository list into refs,
// preserving order and duplicates. Blank entries are skipped; a malformed
// entry fails the whole list.
func ParseRepositoryList(s string) ([]RepositoryRef, error) {
	var refs []RepositoryRef
	for _, entry := range strings.Split(s, ";") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		ref, err := ParseRepositoryRef(entry)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

// MarshalJSON renders the ref in its configured "owner/name" form.
func (r RepositoryRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses the "owner/name" form produced by MarshalJSON.
func (r *RepositoryRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	ref, err := ParseRepositoryRef(s)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// TrafficPoint is one day of a traffic series as the platform reports it.
type TrafficPoint struct {
	Date    time.Time `json:"date"`
	Count   int       `json:"count"`
	Uniques int       `json:"uniques"`
}

// TrafficSeries is the daily series returned for one metric kind, together
// with the raw response payload kept for the audit trail.
type TrafficSeries struct {
	Kind   MetricKind      `json:"kind"`
	Points []TrafficPoint  `json:"points"`
	Raw    json.RawMessage `json:"-"`
}

// TrafficStats bundles the two series fetched for a repository.
type TrafficStats struct {
	Clones TrafficSeries
	Views  TrafficSeries
}

// TrafficRecord is the normalized unit published downstream: one repository,
// one metric kind, one UTC calendar day.
type TrafficRecord struct {
	Repository RepositoryRef `json:"repository"`
	Kind       MetricKind    `json:"metric"`
	Date       time.Time     `json:"date"`
	Count      int           `json:"count"`
	Uniques    int           `json:"uniques"`
}

// RunResult is the outcome of processing one configured repository entry.
type RunResult struct {
	Repository       string    `json:"repository"`
	Succeeded        bool      `json:"succeeded"`
	RecordsPublished int       `json:"records_published"`
	ErrorKind        ErrorKind `json:"error_kind,omitempty"`
	Error            string    `json:"error,omitempty"`
	Anomalies        []string  `json:"anomalies,omitempty"`
}

// RunSummary aggregates per-repository outcomes for the operator log.
type RunSummary struct {
	Total       int         `json:"total_repositories"`
	Succeeded   int         `json:"successful_repositories"`
	Failed      int         `json:"failed_repositories"`
	FailedRepos []string    `json:"failed_repos"`
	Results     []RunResult `json:"results"`
}

// Summarize folds per-repository results into the run summary, preserving
// the configured processing order.
func Summarize(results []RunResult) RunSummary {
	summary := RunSummary{
		Total:       len(results),
		FailedRepos: []string{},
		Results:     results,
	}
	for _, r := range results {
		if r.Succeeded {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.FailedRepos = append(summary.FailedRepos, r.Repository)
		}
	}
	return summary
}
