package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DefaultFeePercent is the resale fee assumed when computing profit.
const DefaultFeePercent = 15

// Amount is a price field that the API sends as a string or a number.
type Amount string

// UnmarshalJSON accepts strings, numbers and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	*a = Amount(data)
	return nil
}

// Float parses the amount; empty or invalid amounts are zero.
func (a Amount) Float() float64 {
	s := strings.TrimPrefix(strings.TrimSpace(string(a)), "$")
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// IsSet reports whether the amount carries a non-zero value.
func (a Amount) IsSet() bool {
	return a != "" && a != "0" && a.Float() != 0
}

// ProductLink is a labelled outbound link of a product.
type ProductLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ProductLinks groups outbound links by marketplace.
type ProductLinks struct {
	Buy   []ProductLink `json:"buy"`
	Ebay  []ProductLink `json:"ebay"`
	FBA   []ProductLink `json:"fba"`
	Other []ProductLink `json:"other"`
}

// ProductData is the product section of a listing.
type ProductData struct {
	Title  string       `json:"title"`
	Price  Amount       `json:"price"`
	Resell Amount       `json:"resell"`
	ROI    Amount       `json:"roi"`
	Image  string       `json:"image"`
	BuyURL string       `json:"buy_url"`
	Links  ProductLinks `json:"links"`
}

// Profit returns the resale price minus the buy price and the resale fee.
func (p ProductData) Profit(feePercent float64) float64 {
	sell := p.Resell.Float()
	return sell - p.Price.Float() - sell*feePercent/100
}

// ReturnOnInvestment returns the profit as a percentage of the buy price.
func (p ProductData) ReturnOnInvestment(feePercent float64) float64 {
	buy := p.Price.Float()
	if buy <= 0 {
		return 0
	}
	return p.Profit(feePercent) / buy * 100
}

// PrimaryBuyURL returns the first buy link of the product, if any.
func (p ProductData) PrimaryBuyURL() string {
	if p.BuyURL != "" {
		return p.BuyURL
	}
	if len(p.Links.Buy) > 0 {
		return p.Links.Buy[0].URL
	}
	return ""
}

// FormatMoney renders a dollar amount with two decimals.
func FormatMoney(v float64) string {
	if v < 0 {
		return "-$" + strconv.FormatFloat(-v, 'f', 2, 64)
	}
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}
