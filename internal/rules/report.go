package rules

import (
	"sort"

	"example.com/siwegate/internal/siwe"
)

type ValidationStats struct {
	Total       int                    `json:"total"`
	Errors      int                    `json:"errors"`
	Warnings    int                    `json:"warnings"`
	Suggestions int                    `json:"suggestions"`
	Fixable     int                    `json:"fixable"`
	ByType      map[siwe.ErrorType]int `json:"byType"`
	ByCode      map[siwe.Code]int      `json:"byCode"`
	Pass        bool                   `json:"pass"`
}

// GetValidationStats aggregates a result without touching it.
func GetValidationStats(res ValidationResult) ValidationStats {
	st := ValidationStats{
		Errors:      len(res.Errors),
		Warnings:    len(res.Warnings),
		Suggestions: len(res.Suggestions),
		ByType:      make(map[siwe.ErrorType]int),
		ByCode:      make(map[siwe.Code]int),
		Pass:        len(res.Errors) == 0,
	}
	for _, d := range res.Diagnostics() {
		st.Total++
		st.ByType[d.Type]++
		st.ByCode[d.Code]++
		if d.Fixable {
			st.Fixable++
		}
	}
	return st
}

type ReportSummary struct {
	IsValid       bool   `json:"isValid"`
	Profile       string `json:"profile"`
	Errors        int    `json:"errors"`
	Warnings      int    `json:"warnings"`
	Suggestions   int    `json:"suggestions"`
	Fixable       int    `json:"fixable"`
	SigningDigest string `json:"signingDigest"`
}

type FixSuggestion struct {
	Code       siwe.Code     `json:"code"`
	Field      siwe.Field    `json:"field,omitempty"`
	Line       int           `json:"line"`
	Severity   siwe.Severity `json:"severity"`
	Fixable    bool          `json:"fixable"`
	Suggestion string        `json:"suggestion"`
}

type Report struct {
	Summary        ReportSummary          `json:"summary"`
	Details        []siwe.ValidationError `json:"details"`
	FixSuggestions []FixSuggestion        `json:"fixSuggestions"`
	Stats          ValidationStats        `json:"stats"`
	FixedMessage   string                 `json:"fixedMessage,omitempty"`
}

// ExportReport turns a result into a self-contained report. Fix suggestions
// list automatic fixes first, then manual advice, each in line order.
func ExportReport(res ValidationResult) Report {
	stats := GetValidationStats(res)
	rep := Report{
		Summary: ReportSummary{
			IsValid:       res.IsValid,
			Profile:       res.Profile,
			Errors:        stats.Errors,
			Warnings:      stats.Warnings,
			Suggestions:   stats.Suggestions,
			Fixable:       stats.Fixable,
			SigningDigest: siwe.SigningDigest(res.OriginalMessage),
		},
		Details:        res.Diagnostics(),
		FixSuggestions: []FixSuggestion{},
		Stats:          stats,
		FixedMessage:   res.FixedMessage,
	}
	for _, d := range rep.Details {
		if d.Suggestion == "" {
			continue
		}
		rep.FixSuggestions = append(rep.FixSuggestions, FixSuggestion{
			Code: d.Code, Field: d.Field, Line: d.Line, Severity: d.Severity, Fixable: d.Fixable, Suggestion: d.Suggestion,
		})
	}
	sort.SliceStable(rep.FixSuggestions, func(i, j int) bool {
		a, b := rep.FixSuggestions[i], rep.FixSuggestions[j]
		if a.Fixable != b.Fixable {
			return a.Fixable
		}
		return a.Line < b.Line
	})
	return rep
}
