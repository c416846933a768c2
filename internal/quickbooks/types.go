package quickbooks

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ref is a QuickBooks entity reference.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
}

// AccountBasedExpenseLineDetail carries the category of an expense line.
type AccountBasedExpenseLineDetail struct {
	AccountRef *Ref `json:"AccountRef,omitempty"`
	ClassRef   *Ref `json:"ClassRef,omitempty"`
}

// Line is a single line of a purchase.
type Line struct {
	ID                            string                         `json:"Id,omitempty"`
	Amount                        decimal.Decimal                `json:"Amount"`
	DetailType                    string                         `json:"DetailType"`
	Description                   string                         `json:"Description,omitempty"`
	AccountBasedExpenseLineDetail *AccountBasedExpenseLineDetail `json:"AccountBasedExpenseLineDetail,omitempty"`
}

// Purchase is a QuickBooks expense/check/credit card charge.
type Purchase struct {
	ID          string          `json:"Id"`
	SyncToken   string          `json:"SyncToken"`
	TxnDate     string          `json:"TxnDate"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	PrivateNote string          `json:"PrivateNote,omitempty"`
	DocNumber   string          `json:"DocNumber,omitempty"`
	PaymentType string          `json:"PaymentType,omitempty"`
	EntityRef   *Ref            `json:"EntityRef,omitempty"`
	AccountRef  *Ref            `json:"AccountRef,omitempty"` // Paid-from account, not the category
	Line        []Line          `json:"Line"`
}

// Date parses TxnDate.
func (p Purchase) Date() (time.Time, error) {
	return time.Parse("2006-01-02", p.TxnDate)
}

// ExpenseDetail returns the first account-based expense line detail, if any.
func (p Purchase) ExpenseDetail() *AccountBasedExpenseLineDetail {
	for _, l := range p.Line {
		if l.DetailType == expenseLineType && l.AccountBasedExpenseLineDetail != nil {
			return l.AccountBasedExpenseLineDetail
		}
	}
	return nil
}

// Uncategorized reports whether the purchase still needs a category: no expense
// account at all, or one of QuickBooks' placeholder accounts.
func (p Purchase) Uncategorized() bool {
	d := p.ExpenseDetail()
	if d == nil || d.AccountRef == nil || d.AccountRef.Value == "" {
		return true
	}
	name := strings.ToLower(d.AccountRef.Name)
	return strings.HasPrefix(name, "uncategorized") || strings.HasPrefix(name, "ask my accountant")
}

// Account is a row of the chart of accounts.
type Account struct {
	ID                 string `json:"Id"`
	Name               string `json:"Name"`
	FullyQualifiedName string `json:"FullyQualifiedName"`
	AccountType        string `json:"AccountType"`
	AccountSubType     string `json:"AccountSubType,omitempty"`
	Classification     string `json:"Classification,omitempty"`
	Active             bool   `json:"Active"`
}

// Class is a QuickBooks class used for segment tracking.
type Class struct {
	ID                 string `json:"Id"`
	Name               string `json:"Name"`
	FullyQualifiedName string `json:"FullyQualifiedName"`
	Active             bool   `json:"Active"`
}

// CompanyInfo holds the fields we read from the company profile.
type CompanyInfo struct {
	CompanyName string `json:"CompanyName"`
	LegalName   string `json:"LegalName,omitempty"`
}

// Token is an Intuit OAuth token pair.
type Token struct {
	AccessToken        string
	RefreshToken       string
	Expiry             time.Time
	RefreshTokenExpiry *time.Time
}

// Session identifies the company and credentials for accounting API calls.
type Session struct {
	RealmID     string
	AccessToken string
}

const expenseLineType = "AccountBasedExpenseLineDetail"
