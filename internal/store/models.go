// Package store persists swap transactions in the document store and
// implements the conditional updates the settlement engine relies on for
// exactly-once payout.
package store

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSettling   Status = "settling"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

type Direction string

const (
	DirectionOnramp  Direction = "onramp"
	DirectionOfframp Direction = "offramp"
)

type Token string

const (
	TokenSTX  Token = "STX"
	TokenUSDC Token = "USDC"
)

type BankDetails struct {
	BankCode      string `bson:"bankCode" json:"bankCode"`
	AccountNumber string `bson:"accountNumber" json:"accountNumber"`
	AccountName   string `bson:"accountName" json:"accountName"`
	BankName      string `bson:"bankName" json:"bankName"`
}

// Transaction is the central record: one per swap attempt, in either
// direction. Fields marked immutable in the spec are only ever set by
// Create; the rest are advanced only through ConditionalUpdate.
type Transaction struct {
	ID                  string         `bson:"_id,omitempty" json:"id"`
	Reference           string         `bson:"reference" json:"reference"`
	Token               Token          `bson:"token" json:"token"`
	Direction           Direction      `bson:"direction" json:"direction"`
	TokenAmount         float64        `bson:"tokenAmount" json:"tokenAmount"`
	NgnAmount           int64          `bson:"ngnAmount" json:"ngnAmount"`
	FeeNGN              int64          `bson:"feeNGN" json:"feeNGN"`
	RateAtTime          float64        `bson:"rateAtTime" json:"rateAtTime"`
	SenderAddress       string         `bson:"senderAddress" json:"senderAddress"`
	RecipientAddress    string         `bson:"recipientAddress" json:"recipientAddress"`
	ChainTxId           string         `bson:"chainTxId,omitempty" json:"chainTxId,omitempty"`
	PayoutProviderTxId  string         `bson:"payoutProviderTxId,omitempty" json:"payoutProviderTxId,omitempty"`
	Status              Status         `bson:"status" json:"status"`
	BankDetails         *BankDetails   `bson:"bankDetails,omitempty" json:"bankDetails,omitempty"`
	ExpiresAt           time.Time      `bson:"expiresAt" json:"expiresAt"`
	Meta                map[string]any `bson:"meta,omitempty" json:"meta,omitempty"`
	CreatedAt           time.Time      `bson:"createdAt" json:"createdAt"`
	ConfirmedAt         *time.Time     `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
}

// PriceSnapshot is an append-only time series entry, written best-effort
// after every successful oracle fetch.
type PriceSnapshot struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Token     Token     `bson:"token" json:"token"`
	PriceUSD  float64   `bson:"priceUSD" json:"priceUSD"`
	PriceNGN  float64   `bson:"priceNGN" json:"priceNGN"`
	UsdToNgn  float64   `bson:"usdToNgn" json:"usdToNgn"`
	FetchedAt time.Time `bson:"fetchedAt" json:"fetchedAt"`
}

type HistoryFilters struct {
	Direction Direction
	Status    Status
	Token     Token
}

type TokenStats struct {
	Token          Token   `bson:"_id" json:"token"`
	Count          int64   `bson:"count" json:"count"`
	TotalTokenAmt  float64 `bson:"totalTokenAmount" json:"totalTokenAmount"`
	TotalNgnAmt    int64   `bson:"totalNgnAmount" json:"totalNgnAmount"`
}
