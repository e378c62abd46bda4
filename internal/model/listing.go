package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ListingID identifies a listing within a region+category partition.
// The API sends it either as a string or as an integer.
type ListingID string

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *ListingID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode listing id: %w", err)
		}
		*id = ListingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode listing id: %w", err)
	}
	*id = ListingID(n.String())
	return nil
}

// Timestamp is a point in time decoded from ISO-8601 text or epoch numbers.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats the API produces.
// Values without a zone are taken as UTC. Numbers above 1e12 are epoch
// milliseconds, smaller numbers epoch seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f > 1e12 {
			return time.UnixMilli(int64(f)).UTC(), nil
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON accepts strings and numbers; null leaves the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		if raw == "" {
			t.Time = time.Time{}
			return nil
		}
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes the time as RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Listing is a deal published by the feed. Everything besides the fields
// the client reasons about stays in Payload untouched.
type Listing struct {
	ID          ListingID
	CreatedAt   time.Time
	IsLocked    bool
	Category    string
	CountryCode string
	Payload     json.RawMessage
}

type listingWire struct {
	ID          ListingID `json:"id"`
	CreatedAt   Timestamp `json:"created_at"`
	IsLocked    bool      `json:"is_locked"`
	Category    string    `json:"category_name,omitempty"`
	CountryCode string    `json:"country_code,omitempty"`
}

// UnmarshalJSON decodes the known fields and keeps the whole object as payload.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var w listingWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode listing: %w", err)
	}
	if w.ID == "" {
		return fmt.Errorf("decode listing: missing id")
	}
	*l = Listing{
		ID:          w.ID,
		CreatedAt:   w.CreatedAt.Time,
		IsLocked:    w.IsLocked,
		Category:    w.Category,
		CountryCode: w.CountryCode,
		Payload:     append(json.RawMessage(nil), data...),
	}
	return nil
}

// MarshalJSON writes the original payload back, or the known fields when
// the listing was built in code.
func (l Listing) MarshalJSON() ([]byte, error) {
	if len(l.Payload) > 0 {
		return l.Payload, nil
	}
	return json.Marshal(listingWire{
		ID:          l.ID,
		CreatedAt:   Timestamp{l.CreatedAt},
		IsLocked:    l.IsLocked,
		Category:    l.Category,
		CountryCode: l.CountryCode,
	})
}

// Product decodes the product_data section of the payload.
// A missing or malformed section yields empty product data.
func (l Listing) Product() ProductData {
	var env struct {
		Product ProductData `json:"product_data"`
	}
	if len(l.Payload) == 0 {
		return ProductData{}
	}
	if err := json.Unmarshal(l.Payload, &env); err != nil {
		return ProductData{}
	}
	return env.Product
}

// DeepLink returns the app link used when sharing a listing.
func (l Listing) DeepLink() string {
	return "hollowscan://product/" + string(l.ID)
}
