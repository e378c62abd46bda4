package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestListingUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  ListingID
		wantAt  time.Time
		locked  bool
		wantErr bool
	}{
		{
			name:   "string id and rfc3339",
			body:   `{"id":"abc","created_at":"2026-01-02T10:05:00Z","is_locked":true}`,
			wantID: "abc",
			wantAt: time.Date(2026, 1, 2, 10, 5, 0, 0, time.UTC),
			locked: true,
		},
		{
			name:   "integer id and naive iso",
			body:   `{"id":42,"created_at":"2026-01-02T10:05:00.123456"}`,
			wantID: "42",
			wantAt: time.Date(2026, 1, 2, 10, 5, 0, 123456000, time.UTC),
		},
		{
			name:   "space separated with offset",
			body:   `{"id":7,"created_at":"2026-01-02 12:05:00+02:00"}`,
			wantID: "7",
			wantAt: time.Date(2026, 1, 2, 10, 5, 0, 0, time.UTC),
		},
		{
			name:   "epoch seconds",
			body:   `{"id":"e","created_at":1767348300}`,
			wantID: "e",
			wantAt: time.Unix(1767348300, 0).UTC(),
		},
		{
			name:   "epoch milliseconds",
			body:   `{"id":"m","created_at":1767348300000}`,
			wantID: "m",
			wantAt: time.Unix(1767348300, 0).UTC(),
		},
		{
			name:   "missing created_at",
			body:   `{"id":"x"}`,
			wantID: "x",
		},
		{
			name:    "missing id",
			body:    `{"created_at":"2026-01-02T10:05:00Z"}`,
			wantErr: true,
		},
		{
			name:    "bad timestamp",
			body:    `{"id":"x","created_at":"yesterday"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Listing
			err := json.Unmarshal([]byte(tt.body), &l)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantID, l.ID); diff != "" {
				t.Errorf("id mismatch (-want +got):\n%s", diff)
			}
			if !l.CreatedAt.Equal(tt.wantAt) {
				t.Errorf("created_at = %v, want %v", l.CreatedAt, tt.wantAt)
			}
			if diff := cmp.Diff(tt.locked, l.IsLocked); diff != "" {
				t.Errorf("is_locked mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListingPayloadRoundTrip(t *testing.T) {
	body := `{"id":9,"created_at":"2026-01-02T10:05:00Z","category_name":"Pokemon","product_data":{"title":"Booster Box","price":"120","resell":200,"extra":{"a":1}}}`

	var l Listing
	if err := json.Unmarshal([]byte(body), &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if diff := cmp.Diff(body, string(out)); diff != "" {
		t.Errorf("payload not preserved (-want +got):\n%s", diff)
	}

	p := l.Product()
	if diff := cmp.Diff("Booster Box", p.Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Amount("200"), p.Resell); diff != "" {
		t.Errorf("resell mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Pokemon", l.Category); diff != "" {
		t.Errorf("category mismatch (-want +got):\n%s", diff)
	}
}

func TestListingMarshalWithoutPayload(t *testing.T) {
	l := Listing{ID: "1", CreatedAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	out, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Listing
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != l.ID || !back.CreatedAt.Equal(l.CreatedAt) {
		t.Errorf("got %+v, want id=%s created_at=%v", back, l.ID, l.CreatedAt)
	}
}

func TestProductProfit(t *testing.T) {
	tests := []struct {
		name       string
		product    ProductData
		wantProfit float64
		wantROI    float64
	}{
		{
			name:       "profitable",
			product:    ProductData{Price: "100", Resell: "200"},
			wantProfit: 70,
			wantROI:    70,
		},
		{
			name:       "losing",
			product:    ProductData{Price: "$50", Resell: "40"},
			wantProfit: -16,
			wantROI:    -32,
		},
		{
			name:       "no buy price",
			product:    ProductData{Resell: "40"},
			wantProfit: 34,
			wantROI:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.product.Profit(DefaultFeePercent); math.Abs(got-tt.wantProfit) > 1e-9 {
				t.Errorf("Profit() = %v, want %v", got, tt.wantProfit)
			}
			if got := tt.product.ReturnOnInvestment(DefaultFeePercent); math.Abs(got-tt.wantROI) > 1e-9 {
				t.Errorf("ReturnOnInvestment() = %v, want %v", got, tt.wantROI)
			}
		})
	}
}

func TestFeedFilterKey(t *testing.T) {
	tests := []struct {
		filter FeedFilter
		want   string
	}{
		{FeedFilter{Region: "UK Stores", Category: "Pokemon"}, "UK Stores|Pokemon"},
		{FeedFilter{Region: "UK Stores"}, "UK Stores|ALL"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tt.filter.Key()); diff != "" {
			t.Errorf("Key() mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 0, want: "$0.00"},
		{in: 12.5, want: "$12.50"},
		{in: -16, want: "-$16.00"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, FormatMoney(tt.in)); diff != "" {
			t.Errorf("FormatMoney(%v) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
