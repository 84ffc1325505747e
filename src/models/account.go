package models

import "fmt"

// AccountClass distinguishes virtual-money accounts from real ones.
type AccountClass string

const (
	AccountDemo AccountClass = "demo"
	AccountLive AccountClass = "live"
)

// MAccount is the active brokerage account as last reported upstream.
type MAccount struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Email    string       `json:"email,omitempty"`
	Balance  float64      `json:"balance"`
	Equity   float64      `json:"equity"`
	Currency string       `json:"currency"`
	Class    AccountClass `json:"type"`
}

// -----------------------------------------------------------------------------

// MAccountSummary is one entry of the account list returned by authorize,
// merged with locally configured credentials for the accounts endpoint.
type MAccountSummary struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Class        AccountClass `json:"type"`
	Currency     string       `json:"currency"`
	Balance      float64      `json:"balance"`
	Equity       float64      `json:"equity"`
	IsActive     bool         `json:"isActive"`
	CredentialID string       `json:"credentialId,omitempty"`
}

// -----------------------------------------------------------------------------

// Credential is an upstream authorization token plus the app id it belongs to.
// The token is a secret: it is excluded from JSON and from String().
type Credential struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Token   string `json:"-"`
	AppID   string `json:"appId"`
	LoginID string `json:"loginId,omitempty"`
}

func (c Credential) String() string {
	if c.LoginID != "" {
		return fmt.Sprintf("%s (%s)", c.Label, c.LoginID)
	}
	return fmt.Sprintf("%s [%s]", c.Label, c.ID)
}

// IsZero reports whether no token is set.
func (c Credential) IsZero() bool {
	return c.Token == ""
}
