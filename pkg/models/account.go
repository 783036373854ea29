package models

// Account is one configured identity against the Commonly service.
// Accounts are resolved fresh from configuration on each operation and are
// never mutated in place.
type Account struct {
	AccountID    string   `json:"account_id" validate:"required"`
	BaseURL      string   `json:"base_url"`
	RuntimeToken string   `json:"runtime_token"`
	UserToken    string   `json:"user_token,omitempty"`
	AgentName    string   `json:"agent_name,omitempty"`
	InstanceID   string   `json:"instance_id,omitempty"`
	PodIDs       []string `json:"pod_ids,omitempty"`
	Enabled      bool     `json:"enabled"`
}

// Configured reports whether the account carries enough credentials to talk
// to the runtime-scoped API at all.
func (a Account) Configured() bool {
	return a.BaseURL != "" && a.RuntimeToken != ""
}

// ResolvedUserToken returns the user-scoped credential, falling back to the
// runtime token when no user token is configured.
func (a Account) ResolvedUserToken() string {
	if a.UserToken != "" {
		return a.UserToken
	}
	return a.RuntimeToken
}
