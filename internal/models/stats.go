package models

// DashboardStats summarizes a bookkeeper's workload across all clients.
type DashboardStats struct {
	TotalClients        int     `json:"totalClients"`
	PendingTransactions int     `json:"pendingTransactions"`
	TimeSavedHours      float64 `json:"timeSavedHours"`
	OverallAccuracy     float64 `json:"overallAccuracy"`
}

// CategorizationStatus holds per-status transaction counts for one client.
type CategorizationStatus struct {
	ClientID      string `json:"clientId"`
	Uncategorized int    `json:"uncategorized"`
	Pending       int    `json:"pending"`
	Approved      int    `json:"approved"`
	Edited        int    `json:"edited"`
	Rejected      int    `json:"rejected"`
	Synced        int    `json:"synced"`
	Error         int    `json:"error"`
	Total         int    `json:"total"`
}

// SyncResult reports the outcome of importing transactions from QuickBooks.
type SyncResult struct {
	Success             bool     `json:"success"`
	TransactionsFetched int      `json:"transactionsFetched"`
	TransactionsStored  int      `json:"transactionsStored"`
	TransactionsSkipped int      `json:"transactionsSkipped"`
	Message             string   `json:"message"`
	Errors              []string `json:"errors,omitempty"`
}

// ItemError reports a failure for a single transaction inside a batch operation.
type ItemError struct {
	TransactionID string `json:"transactionId"`
	Error         string `json:"error"`
}

// CategorizationOutcome is the AI suggestion stored for one transaction.
type CategorizationOutcome struct {
	TransactionID   string  `json:"transactionId"`
	Success         bool    `json:"success"`
	AccountID       string  `json:"accountId"`
	AccountName     string  `json:"accountName"`
	ClassID         string  `json:"classId,omitempty"`
	ClassName       string  `json:"className,omitempty"`
	Confidence      float64 `json:"confidence"`
	ConfidenceLevel string  `json:"confidenceLevel"`
	Reasoning       string  `json:"reasoning"`
}

// CategorizeResult reports a batch categorization run.
type CategorizeResult struct {
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	Categorized int                     `json:"categorized"`
	Failed      int                     `json:"failed"`
	Results     []CategorizationOutcome `json:"results"`
	Errors      []ItemError             `json:"errors,omitempty"`
}

// PushResult reports writing approved categorizations back to QuickBooks.
type PushResult struct {
	Success      bool        `json:"success"`
	Synced       int         `json:"synced"`
	Errors       int         `json:"errors"`
	ErrorDetails []ItemError `json:"errorDetails"`
	Message      string      `json:"message"`
}
