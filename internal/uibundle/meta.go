package uibundle

import "time"

// Source says where a snapshot came from
type Source string

const (
	SourceUnknown  Source = "unknown"
	SourceEmbedded Source = "embedded"
	SourceDisk     Source = "disk"
	SourceS3       Source = "s3"
)

func (s Source) String() string {
	if s == "" {
		return string(SourceUnknown)
	}
	return string(s)
}

// Meta describes a loaded bundle
type Meta struct {
	Version    string    `json:"version,omitempty"`
	SHA256     string    `json:"sha256,omitempty"`
	Source     Source    `json:"source"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
}

// Manifest is the optional bundle.json at the root of a bundle
type Manifest struct {
	Version string    `json:"version"`
	BuiltAt time.Time `json:"built_at,omitempty"`
	Commit  string    `json:"commit,omitempty"`
}
