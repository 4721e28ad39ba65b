package release

// UpdateInfo is returned by a read-only check when a newer release exists.
type UpdateInfo struct {
	CurrentVersion string `json:"current_version"`
	NewVersion     string `json:"new_version"`
	ReleaseNotes   string `json:"release_notes,omitempty"`
	DownloadURL    string `json:"download_url"`
	// CanAutoInstall is false when the install location is not writable.
	CanAutoInstall bool `json:"can_auto_install"`
}

// Progress is emitted after every downloaded chunk.
type Progress struct {
	// Downloaded is the number of bytes written so far.
	Downloaded int64 `json:"downloaded"`
	// Total is the Content-Length, or -1 when unknown.
	Total int64 `json:"total"`
	// Percent is 0-100, or -1 when Total is unknown.
	Percent int `json:"percent"`
}

// HasTotal reports whether the size of the artifact is known.
func (p Progress) HasTotal() bool {
	return p.Total >= 0
}

// NewProgress builds a Progress, deriving Percent from the totals.
func NewProgress(downloaded, total int64) Progress {
	p := Progress{
		Downloaded: downloaded,
		Total:      total,
		Percent:    -1,
	}

	if total > 0 {
		p.Percent = int(downloaded * 100 / total)
		if p.Percent > 100 {
			p.Percent = 100
		}
	} else if total == 0 {
		p.Percent = 100
	}

	return p
}
