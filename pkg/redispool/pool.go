package redispool

// Endpoint is an immutable snapshot of one configured Redis instance as of
// the most recent probe cycle.
type Endpoint struct {
	Address   string
	Role      Role
	Available bool
	// Follows is the master this endpoint currently replicates from;
	// meaningful only when Role is RoleSlave.
	Follows string
}

// Pool is the classified snapshot of all configured endpoints produced by a
// single probe cycle. Every endpoint is in exactly one of Masters/Slaves/
// Unknown after a probe; Unknown covers unreachable endpoints.
type Pool struct {
	endpoints []Endpoint
}

// NewPool wraps a slice of endpoints as a Pool snapshot.
func NewPool(endpoints []Endpoint) Pool {
	return Pool{endpoints: endpoints}
}

// All returns every endpoint in the snapshot.
func (p Pool) All() []Endpoint {
	return p.endpoints
}

// Masters returns every endpoint classified as master.
func (p Pool) Masters() []Endpoint {
	return p.filter(RoleMaster)
}

// Slaves returns every endpoint classified as slave.
func (p Pool) Slaves() []Endpoint {
	return p.filter(RoleSlave)
}

func (p Pool) filter(role Role) []Endpoint {
	var out []Endpoint
	for _, e := range p.endpoints {
		if e.Role == role && e.Available {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the endpoint at addr, if present in the snapshot.
func (p Pool) Find(addr string) (Endpoint, bool) {
	for _, e := range p.endpoints {
		if e.Address == addr {
			return e, true
		}
	}
	return Endpoint{}, false
}

// AutoDetectMaster returns the single endpoint whose role is master iff
// exactly one master exists in the pool; otherwise it returns false.
func (p Pool) AutoDetectMaster() (Endpoint, bool) {
	masters := p.Masters()
	if len(masters) != 1 {
		return Endpoint{}, false
	}
	return masters[0], true
}

// SlavesOf returns every reachable slave endpoint currently replicating
// from masterAddr, in probe order. Used by the master switch to find "a
// slave of the now-demoted old master" (spec.md §4.5.4).
func (p Pool) SlavesOf(masterAddr string) []Endpoint {
	var out []Endpoint
	for _, e := range p.Slaves() {
		if e.Follows == masterAddr {
			out = append(out, e)
		}
	}
	return out
}

// OtherMasters returns every reachable master endpoint other than
// excludeAddr, in probe order.
func (p Pool) OtherMasters(excludeAddr string) []Endpoint {
	var out []Endpoint
	for _, e := range p.Masters() {
		if e.Address != excludeAddr {
			out = append(out, e)
		}
	}
	return out
}
