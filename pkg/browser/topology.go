package browser

// StaticTopology is a fixed-map Topology for applications whose login
// rules are known up front: a set of locations that require login and
// one transition routine used for every identity change.
type StaticTopology struct {
	// LoginRequired marks locations that need an authenticated identity.
	LoginRequired map[string]bool

	// Login performs the identity transition. Nil means identity
	// changes are accepted without any transition.
	Login LoginFunc
}

func (t *StaticTopology) NeedsLogin(location, identity string) bool {
	return t.LoginRequired[location]
}

func (t *StaticTopology) ResolveLogin(page *PageObject, identity string) LoginFunc {
	return t.Login
}
