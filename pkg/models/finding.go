package models

import "strings"

// Origin records where a finding or source came from.
type Origin string

const (
	OriginDocument     Origin = "document"
	OriginWebSearch    Origin = "webSearch"
	OriginLLMSynthesis Origin = "llmSynthesis"
)

// Finding is one piece of evidence accumulated during execution.
type Finding struct {
	Text      string `json:"text"`
	Origin    Origin `json:"origin"`
	SourceRef string `json:"sourceRef,omitempty"`
}

// Source points at where evidence came from: a URL for web results, a
// file name for uploaded documents.
type Source struct {
	URL      string `json:"url,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Title    string `json:"title,omitempty"`
	Origin   Origin `json:"origin"`
}

// Label returns the human-facing identifier of the source.
func (s Source) Label() string {
	if s.URL != "" {
		return s.URL
	}
	return s.FileName
}

// CanonicalKey returns the dedup key for a source: the case-folded URL
// without a trailing slash, or the case-folded file name.
func (s Source) CanonicalKey() string {
	key := s.URL
	if key == "" {
		key = s.FileName
	}
	key = strings.TrimSuffix(strings.TrimSpace(key), "/")
	return strings.ToLower(key)
}
