package models

import "time"

// Client represents a QuickBooks Online company connected by a bookkeeper.
type Client struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"userId"`
	Name                 string     `json:"name"`
	QBRealmID            string     `json:"qbRealmId"`
	QBAccessToken        string     `json:"-"` // Encrypted at rest, never exposed
	QBRefreshToken       string     `json:"-"`
	QBTokenExpiry        time.Time  `json:"-"`
	QBRefreshTokenExpiry *time.Time `json:"-"`
	QBEnvironment        string     `json:"qbEnvironment"`
	IsActive             bool       `json:"isActive"`
	LastSyncAt           *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// ClientWithStats is a client plus its review counters, as shown on the dashboard.
type ClientWithStats struct {
	Client
	PendingTransactions int      `json:"pendingTransactions"`
	TotalTransactions   int      `json:"totalTransactions"`
	Accuracy            *float64 `json:"accuracy,omitempty"` // Share of learning examples the AI got right
}
