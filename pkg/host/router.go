package host

// StaticRouter derives deterministic session keys from the channel, account
// and peer. It is the default resolver when no external runtime supplies one.
type StaticRouter struct{}

// NewStaticRouter creates a static route resolver.
func NewStaticRouter() *StaticRouter {
	return &StaticRouter{}
}

// ResolveAgentRoute builds a stable per-peer session key. The main session
// key groups every peer of the account on the channel.
func (r *StaticRouter) ResolveAgentRoute(channel string, accountID string, peer string) (Route, error) {
	return Route{
		SessionKey:     channel + ":" + accountID + ":" + peer,
		AgentID:        accountID,
		MainSessionKey: channel + ":" + accountID,
	}, nil
}
