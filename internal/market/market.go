package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Bucket is the host's search category.
type Bucket string

const (
	BucketPlayer     Bucket = "player"
	BucketStaff      Bucket = "staff"
	BucketClub       Bucket = "club"
	BucketConsumable Bucket = "consumable"
)

// ParseBucket accepts a bucket name, defaulting empty input to players.
func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BucketPlayer, nil
	case BucketPlayer, BucketStaff, BucketClub, BucketConsumable:
		return b, nil
	default:
		return "", fmt.Errorf("unknown search bucket %q", s)
	}
}

// CaptchaRequired is the status sentinel the host reports when a challenge is pending.
const CaptchaRequired = "CAPTCHA_REQUIRED"

// Item is one listing returned by a search.
type Item struct {
	TradeID     int64  `json:"tradeId"`
	BuyNowPrice int    `json:"buyNowPrice"`
	TradeState  string `json:"tradeState"`
	Expires     int    `json:"expires"`
	ItemID      int64  `json:"itemId"`
	Name        string `json:"name"`
	Rating      int    `json:"rating"`
}

// Label renders the item for a log line.
func (i Item) Label() string {
	name := strings.TrimSpace(i.Name)
	if name == "" {
		name = "Item"
	}
	if i.Rating > 0 {
		return fmt.Sprintf("%s (%d) [%d]", name, i.Rating, i.TradeID)
	}
	return fmt.Sprintf("%s [%d]", name, i.TradeID)
}

// SearchRequest is one first-page market query.
type SearchRequest struct {
	Bucket   Bucket   `json:"bucket"`
	Criteria Criteria `json:"criteria"`
	Page     int      `json:"page"`
}

// SearchResponse mirrors the host service response envelope.
type SearchResponse struct {
	Success    bool   `json:"success"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText,omitempty"`
	ErrorCode  string `json:"errorCode,omitempty"`
	Items      []Item `json:"items"`
}

// Gateway performs marketplace calls through the host application's services.
type Gateway interface {
	Search(ctx context.Context, req SearchRequest) (SearchResponse, error)
	Bid(ctx context.Context, item Item, price int) (bool, error)
	Relist(ctx context.Context, item Item, startPrice, buyNowPrice int, duration time.Duration) error
	TransferPileFull(ctx context.Context) (bool, error)
}

// PageViewer is implemented by gateways that can emit the host's page-view telemetry.
type PageViewer interface {
	PageView(ctx context.Context, page string) error
}

// CoinReader is implemented by gateways that expose the account balance.
type CoinReader interface {
	Coins(ctx context.Context) (int64, error)
}

// ViewState reads what the host search screen currently displays.
type ViewState interface {
	CurrentCriteria(ctx context.Context) (Criteria, error)
	DefaultCriteria(ctx context.Context) (Criteria, error)
}

// Page identifiers used for page-view telemetry.
const (
	PageSearch  = "Transfer Market Search"
	PageResults = "Transfer Market Results - List View"
)
