// internal/feed/json.go
package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"commit-tracker/internal/model"
)

type jsonPage struct {
	Total   int64        `json:"total"`
	Skip    int64        `json:"skip"`
	Take    int64        `json:"take"`
	Results []jsonCommit `json:"results"`
}

type jsonCommit struct {
	ID        int64  `json:"id"`
	Repo      string `json:"repo"`
	Branch    string `json:"branch"`
	Changeset string `json:"changeset"`
	Message   string `json:"message"`
	User      struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"user"`
}

func parseJSON(body []byte) (*model.FetchResult, error) {
	var page jsonPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode feed json: %w", err)
	}
	if len(page.Results) == 0 {
		return nil, ErrNoCommit
	}

	c := page.Results[0]
	if c.ID <= 0 {
		return nil, fmt.Errorf("feed entry has invalid id %d", c.ID)
	}
	return &model.FetchResult{
		Commit: model.CommitRecord{
			ID:        c.ID,
			Author:    strings.TrimSpace(c.User.Name),
			Repo:      strings.TrimSpace(c.Repo),
			Branch:    strings.TrimSpace(c.Branch),
			Changeset: strings.TrimSpace(c.Changeset),
			Message:   strings.TrimSpace(c.Message),
			AvatarURL: strings.TrimSpace(c.User.Avatar),
		},
		Total:    page.Total,
		Position: page.Skip + 1,
	}, nil
}
