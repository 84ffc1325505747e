package gateway

import (
	"fmt"
	"strings"

	"trading-relay/src/helpers"
	"trading-relay/src/models"
	"trading-relay/src/utils"
)

// Accounts merges the configured credentials with the account list the
// last authorize returned. Tokens are never part of the result.
func (g *Gateway) Accounts() []models.MAccountSummary {
	acc, authorized := g.store.GetAccount()

	g.credMu.Lock()
	defer g.credMu.Unlock()

	if authorized {
		for i := range g.creds {
			if g.creds[i].ID == g.activeCred {
				g.creds[i].LoginID = acc.ID
			}
		}
	}

	list := g.store.AccountList()
	byLogin := make(map[string]int, len(list))
	for i, s := range list {
		byLogin[s.ID] = i
	}

	for _, c := range g.creds {
		active := c.ID == g.activeCred
		if i, ok := byLogin[c.LoginID]; ok && c.LoginID != "" {
			list[i].CredentialID = c.ID
			if active {
				list[i].Balance = acc.Balance
				list[i].Equity = acc.Equity
			}
			continue
		}
		s := models.MAccountSummary{
			ID:           c.LoginID,
			Name:         c.Label,
			CredentialID: c.ID,
			IsActive:     active && len(list) == 0,
		}
		if s.ID == "" {
			s.ID = c.ID
		}
		list = append(list, s)
	}
	return list
}

// AddAccount stores a new credential and makes it the active one.
func (g *Gateway) AddAccount(token, appID, label string) (models.MAccountSummary, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.MAccountSummary{}, helpers.NewValidationError("token is required")
	}
	if appID == "" {
		appID = g.opts.DefaultAppID
	}

	g.credMu.Lock()
	for _, c := range g.creds {
		if c.Token == token {
			g.credMu.Unlock()
			return models.MAccountSummary{}, helpers.NewValidationError("credential already added as %s", c.ID)
		}
	}
	cred := models.Credential{
		ID:    utils.NewID(g.opts.Now()),
		Label: strings.TrimSpace(label),
		Token: token,
		AppID: appID,
	}
	if cred.Label == "" {
		cred.Label = fmt.Sprintf("account %d", len(g.creds)+1)
	}
	g.creds = append(g.creds, cred)
	g.activeCred = cred.ID
	g.credMu.Unlock()

	g.rec.Info(subsystem, "added account %s", cred)
	g.link.SwitchCredential(cred)
	return models.MAccountSummary{ID: cred.ID, Name: cred.Label, CredentialID: cred.ID, IsActive: true}, nil
}

// SelectAccount switches the link to the credential with the given id or
// login id.
func (g *Gateway) SelectAccount(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return helpers.NewValidationError("accountId is required")
	}

	g.credMu.Lock()
	var (
		cred  models.Credential
		found bool
	)
	for _, c := range g.creds {
		if c.ID == id || (c.LoginID != "" && c.LoginID == id) {
			cred, found = c, true
			break
		}
	}
	if !found {
		g.credMu.Unlock()
		return helpers.Wrap(helpers.ErrAccountNotFound, "%s", id)
	}
	already := cred.ID == g.activeCred
	g.activeCred = cred.ID
	g.credMu.Unlock()

	if already && g.link.IsAuthorized() {
		return nil
	}
	g.link.SwitchCredential(cred)
	return nil
}

// ActiveCredentialID returns the id of the selected credential.
func (g *Gateway) ActiveCredentialID() string {
	g.credMu.RLock()
	defer g.credMu.RUnlock()
	return g.activeCred
}
