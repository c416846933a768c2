package models

// QBAccount is a cached row of a client's QuickBooks chart of accounts.
type QBAccount struct {
	ID                 string `json:"id"`
	ClientID           string `json:"clientId"`
	QBID               string `json:"qbId"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
	AccountType        string `json:"accountType"`
	AccountSubType     string `json:"accountSubType,omitempty"`
	Classification     string `json:"classification,omitempty"`
	Active             bool   `json:"active"`
}

// QBClass is a cached QuickBooks class.
type QBClass struct {
	ID                 string `json:"id"`
	ClientID           string `json:"clientId"`
	QBID               string `json:"qbId"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
	Active             bool   `json:"active"`
}
