package normalizer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/msp-docs/psa-sync/internal/domain"
)

// fields holds the json paths a vendor uses for each canonical field.  A path
// is a dotted walk through objects and arrays ("company.id",
// "communicationItems.0.value"); alternatives are separated by "|" and the
// first non-empty one wins.
type fields struct {
	ID         string
	Company    string
	Contact    string
	Name       string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Title      string
	Website    string
	Subject    string
	Status     string
	Priority   string
	OpenedAt   string
	ClosedAt   string
	DeviceType string
	Serial     string
	OS         string
}

type entityMapping struct {
	fields     fields
	statuses   map[string]string
	priorities map[string]domain.TicketPriority
}

type vendorMapping map[domain.EntityType]entityMapping

type document map[string]interface{}

func decode(raw json.RawMessage) (document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errNotAnObject
	}
	return doc, nil
}

func (d document) lookup(path string) interface{} {
	if path == "" {
		return nil
	}

	for _, alternative := range strings.Split(path, "|") {
		if v := walk(d, strings.Split(alternative, ".")); v != nil && text(v) != "" {
			return v
		}
	}
	return nil
}

func walk(v interface{}, segments []string) interface{} {
	for _, segment := range segments {
		switch node := v.(type) {
		case document:
			v = node[segment]
		case map[string]interface{}:
			v = node[segment]
		case []interface{}:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}

func text(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

// cleanName trims and collapses inner whitespace
func cleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// splitName breaks a full name at the first space
func splitName(full string) (string, string) {
	full = cleanName(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i], full[i+1:]
	}
	return full, ""
}

func vocabKey(s string) string {
	return strings.ToLower(cleanName(s))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
