package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LearningExample is an approved categorization kept to steer future suggestions.
type LearningExample struct {
	ID                 string          `json:"id"`
	ClientID           string          `json:"clientId"`
	TransactionID      string          `json:"transactionId"`
	Description        string          `json:"description"`
	Vendor             *string         `json:"vendor,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	CorrectAccountID   string          `json:"correctAccountId"`
	CorrectAccountName string          `json:"correctAccountName"`
	CorrectClassID     *string         `json:"correctClassId,omitempty"`
	CorrectClassName   *string         `json:"correctClassName,omitempty"`
	AIAccountID        *string         `json:"aiAccountId,omitempty"`
	AIAccountName      *string         `json:"aiAccountName,omitempty"`
	WasCorrect         bool            `json:"wasCorrect"`
	EmbeddingJSON      string          `json:"-"` // Stored as JSON array string
	Embedding          []float32       `json:"-"`
	PineconeID         *string         `json:"pineconeId,omitempty"`
	SyncedToPinecone   bool            `json:"syncedToPinecone"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// PrepareForDB marshals the embedding into its JSON string form before saving.
func (l *LearningExample) PrepareForDB() {
	if l.Embedding != nil {
		b, _ := json.Marshal(l.Embedding)
		l.EmbeddingJSON = string(b)
	}
}

// PrepareForAPI unmarshals the stored embedding.
func (l *LearningExample) PrepareForAPI() {
	if l.EmbeddingJSON != "" {
		json.Unmarshal([]byte(l.EmbeddingJSON), &l.Embedding)
	}
}

// SearchText is the text embedded for similarity lookups.
func (l *LearningExample) SearchText() string {
	return EmbeddingText(l.Description, StringValue(l.Vendor))
}
