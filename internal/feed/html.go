// internal/feed/html.go
package feed

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"commit-tracker/internal/model"
)

var urlPattern = regexp.MustCompile(`https?://[^\s'"()<>]+`)

// parseHTML extracts the first commit block from a rendered feed page.
func parseHTML(body []byte) (*model.FetchResult, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed html: %w", err)
	}

	block := findFirst(doc, elementWithClasses("div", "commit", "columns"))
	if block == nil {
		return nil, ErrNoCommit
	}

	likeID, ok := attr(block, "like-id")
	if !ok {
		return nil, fmt.Errorf("commit block has no like-id attribute")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(likeID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("commit block has invalid like-id %q: %w", likeID, err)
	}

	commit := model.CommitRecord{ID: id}
	fields := []struct {
		tag, class string
		dst        *string
	}{
		{"div", "author", &commit.Author},
		{"span", "repo", &commit.Repo},
		{"span", "branch", &commit.Branch},
		{"span", "changeset", &commit.Changeset},
		{"div", "commits-message", &commit.Message},
	}
	for _, f := range fields {
		n := findFirst(block, elementWithClasses(f.tag, f.class))
		if n == nil {
			return nil, fmt.Errorf("commit %d: no %s.%s element", id, f.tag, f.class)
		}
		*f.dst = strings.TrimSpace(textContent(n))
	}

	avatar := findFirst(block, elementWithClasses("div", "avatar"))
	if avatar == nil {
		return nil, fmt.Errorf("commit %d: no div.avatar element", id)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, avatar); err != nil {
		return nil, fmt.Errorf("commit %d: render avatar: %w", id, err)
	}
	commit.AvatarURL = urlPattern.FindString(html.UnescapeString(buf.String()))
	if commit.AvatarURL == "" {
		return nil, fmt.Errorf("commit %d: no URL in avatar element", id)
	}

	return &model.FetchResult{Commit: commit, Position: 1}, nil
}

func elementWithClasses(tag string, classes ...string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != tag {
			return false
		}
		v, _ := attr(n, "class")
		have := strings.Fields(v)
		for _, want := range classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}

// findFirst walks n depth-first and returns the first node matching match.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
