// Package record holds the result produced by a run.
package record

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind distinguishes the two result shapes.
type Kind string

const (
	KindFixedRelease   Kind = "fixed_release"
	KindFlexibleResult Kind = "flexible_result"
)

// Strategy names the extraction path that produced the record.
type Strategy string

const (
	StrategyScoped  Strategy = "scoped_text"
	StrategyOneShot Strategy = "one_shot"
	StrategyPrompt  Strategy = "prompt"
	StrategyNone    Strategy = "none"
)

// Asset is a downloadable release artifact.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Release is the fixed-schema record. Every field is always serialized.
type Release struct {
	Version     string  `json:"version"`
	Tag         string  `json:"tag"`
	Author      string  `json:"author"`
	PublishedAt string  `json:"published_at"`
	Notes       string  `json:"notes"`
	Assets      []Asset `json:"assets"`
}

// Normalized returns a copy with trimmed scalar fields, a non-nil asset list
// and normalized notes.
func (r Release) Normalized() Release {
	out := Release{
		Version:     strings.TrimSpace(r.Version),
		Tag:         strings.TrimSpace(r.Tag),
		Author:      strings.TrimSpace(r.Author),
		PublishedAt: strings.TrimSpace(r.PublishedAt),
		Notes:       NormalizeNotes(r.Notes),
		Assets:      make([]Asset, 0, len(r.Assets)),
	}
	for _, a := range r.Assets {
		a.Name, a.URL = strings.TrimSpace(a.Name), strings.TrimSpace(a.URL)
		if a.Name == "" && a.URL == "" {
			continue
		}
		out.Assets = append(out.Assets, a)
	}
	return out
}

// IsEmpty reports whether nothing identifying was extracted.
func (r Release) IsEmpty() bool {
	return strings.TrimSpace(r.Version) == "" && strings.TrimSpace(r.Tag) == ""
}

// Diagnostics explains how a record was produced.
type Diagnostics struct {
	Strategy     Strategy `json:"strategy"`
	FallbackUsed bool     `json:"fallback_used"`
	Reasons      []string `json:"reasons"`
}

// AddReason appends a reason code followed by an optional detail.
func (d *Diagnostics) AddReason(code ErrorCode, detail string) {
	reason := string(code)
	if detail != "" {
		reason += ": " + detail
	}
	d.Reasons = append(d.Reasons, reason)
}

// Record is the tagged result of a run. It always carries the target.
type Record struct {
	Kind        Kind
	Target      string
	Release     Release
	Result      any
	Diagnostics Diagnostics
}

// NewFixedRelease creates an empty structured record for target.
func NewFixedRelease(target string) Record {
	return Record{Kind: KindFixedRelease, Target: target, Release: Release{}.Normalized(), Diagnostics: Diagnostics{Strategy: StrategyNone}}
}

// NewFlexibleResult creates an empty prompt-driven record for target.
func NewFlexibleResult(target string) Record {
	return Record{Kind: KindFlexibleResult, Target: target, Result: "", Diagnostics: Diagnostics{Strategy: StrategyNone}}
}

type fixedReleaseJSON struct {
	Target        string      `json:"target"`
	LatestRelease Release     `json:"latest_release"`
	Diagnostics   Diagnostics `json:"diagnostics"`
}

type flexibleResultJSON struct {
	Target      string      `json:"target"`
	Result      any         `json:"result"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// MarshalJSON emits the shape for the record's kind. Missing values are
// written as empty strings and lists rather than omitted.
func (r Record) MarshalJSON() ([]byte, error) {
	diag := r.Diagnostics
	if diag.Reasons == nil {
		diag.Reasons = []string{}
	}
	if diag.Strategy == "" {
		diag.Strategy = StrategyNone
	}

	if r.Kind == KindFlexibleResult {
		result := r.Result
		if result == nil {
			result = ""
		}
		return json.Marshal(flexibleResultJSON{Target: r.Target, Result: result, Diagnostics: diag})
	}
	return json.Marshal(fixedReleaseJSON{Target: r.Target, LatestRelease: r.Release.Normalized(), Diagnostics: diag})
}
