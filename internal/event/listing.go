package event

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// ListingItem is one NFT attached to a listing.
type ListingItem struct {
	Name string `json:"name"`
}

// Listing is the subset of an indexed marketplace listing that gets attached
// to storefront and discovery events. Amounts are in lamports.
type Listing struct {
	ListingAddress       string        `json:"listing_address"`
	Subdomain            string        `json:"subdomain"`
	CreatedAt            time.Time     `json:"created_at"`
	EndsAt               *time.Time    `json:"ends_at,omitempty"`
	Ended                bool          `json:"ended"`
	HighestBid           uint64        `json:"highest_bid"`
	InstantSalePrice     uint64        `json:"instant_sale_price"`
	TotalUncancelledBids int           `json:"total_uncancelled_bids"`
	LastBidTime          *time.Time    `json:"last_bid_time,omitempty"`
	PrimarySaleHappened  bool          `json:"primary_sale_happened"`
	Items                []ListingItem `json:"items"`
}

// LamportsToSol converts a lamport amount to SOL.
func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

// Price is the listing's display price in SOL: the instant sale price for
// buy-now listings, otherwise the highest bid so far.
func (l *Listing) Price() float64 {
	if l.EndsAt == nil && l.InstantSalePrice > 0 {
		return LamportsToSol(l.InstantSalePrice)
	}
	return LamportsToSol(l.HighestBid)
}

// ListingAttributes describes a listing for a track call.
func ListingAttributes(l Listing) Attributes {
	isAuction := l.EndsAt != nil
	category := "buy_now"
	if isAuction {
		category = "auction"
	}
	attrs := Attributes{
		"listingAddress":       l.ListingAddress,
		"createdAt":            l.CreatedAt.UTC().Format(time.RFC3339),
		"ended":                l.Ended,
		"highestBid":           LamportsToSol(l.HighestBid),
		"nrOfBids":             l.TotalUncancelledBids,
		"lastBidTime":          nil,
		"price":                l.Price(),
		"isBuyNow":             !isAuction,
		"isAuction":            isAuction,
		"listingCategory":      category,
		"subdomain":            l.Subdomain,
		"isSecondarySale":      l.PrimarySaleHappened,
		"hasParticipationNFTs": len(l.Items),
	}
	if l.LastBidTime != nil {
		attrs["lastBidTime"] = l.LastBidTime.UTC().Format(time.RFC3339)
	}
	return attrs
}

// ListingItems describes a list of listings as ecommerce items, in display order.
func ListingItems(listings []Listing, listID string) []Attributes {
	out := make([]Attributes, 0, len(listings))
	for i, l := range listings {
		item := ListingAttributes(l)
		item["item_id"] = l.ListingAddress
		item["item_name"] = nil
		if len(l.Items) > 0 {
			item["item_name"] = l.Items[0].Name
		}
		item["affiliation"] = l.Subdomain
		item["index"] = i
		item["item_list_id"] = listID
		item["item_list_name"] = listID
		out = append(out, item)
	}
	return out
}
