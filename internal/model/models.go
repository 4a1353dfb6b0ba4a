// internal/model/models.go
package model

import "time"

// CommitRecord is a snapshot of one upstream commit as read from the feed.
type CommitRecord struct {
	ID        int64
	Author    string
	Repo      string
	Branch    string
	Changeset string
	Message   string
	AvatarURL string
	Link      string
}

// FetchResult is the latest commit plus its place in the upstream ordering.
// Total is 0 when the feed does not report it.
type FetchResult struct {
	Commit   CommitRecord
	Total    int64
	Position int64
}

// Number returns the commit's ordinal counted from the oldest upstream commit,
// or 0 when the total is unknown.
func (r *FetchResult) Number() int64 {
	if r.Total <= 0 || r.Position <= 0 || r.Position > r.Total {
		return 0
	}
	return r.Total - r.Position + 1
}

// LedgerEntry is a commit that has already been announced.
type LedgerEntry struct {
	CommitID  int64     `json:"commit_id"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Branch    string    `json:"branch"`
	Changeset string    `json:"changeset"`
	SentAt    time.Time `json:"sent_at"`
}
