package domain

// ViewState is the viewer state kept across restarts. The backlog itself
// is never persisted.
type ViewState struct {
	Filter        string `json:"filter" toml:"filter"`
	CaseSensitive bool   `json:"caseSensitive" toml:"case_sensitive"`
	Wrap          bool   `json:"wrap" toml:"wrap"`
	Serial        string `json:"serial" toml:"serial"`
}
