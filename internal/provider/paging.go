package provider

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
)

// keyedEndpoint is a list endpoint whose records sit under one key of a
// json object.
type keyedEndpoint struct {
	path string
	key  string
}

func (e keyedEndpoint) records(provider domain.ProviderType, resp map[string]json.RawMessage) ([]json.RawMessage, error) {
	raw, ok := resp[e.key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &domain.ProviderError{Provider: provider, Message: "unexpected " + e.key + " payload"}
	}
	return records, nil
}

// pageNumber parses a numeric page token.  The first page is start.
func pageNumber(token string, start int) int {
	if token == "" {
		return start
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < start {
		return start
	}
	return n
}

// nextPageIfFull treats a short page as the last one
func nextPageIfFull(got, pageSize, current int) string {
	if got < pageSize {
		return ""
	}
	return strconv.Itoa(current + 1)
}

// nextPageByTotal uses a record total reported by the vendor
func nextPageByTotal(current, pageSize, total int) string {
	if current*pageSize >= total {
		return ""
	}
	return strconv.Itoa(current + 1)
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if param == `rel="next"` || param == "rel=next" {
				return strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
			}
		}
	}
	return ""
}
