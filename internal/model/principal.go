package model

// PrincipalKind distinguishes how a request's caller was resolved, per
// spec §4.2's resolution precedence (session, API token, worker id,
// anonymous).
type PrincipalKind string

const (
	PrincipalUser      PrincipalKind = "user"
	PrincipalAPIToken  PrincipalKind = "api_token"
	PrincipalWorker    PrincipalKind = "worker"
	PrincipalAnonymous PrincipalKind = "anonymous"
)

// Principal is the resolved identity of an inbound request, carrying enough
// to evaluate permissions and ownership without a second lookup.
type Principal struct {
	Kind        PrincipalKind
	Username    string
	UserID      string
	WorkerID    string
	Roles       []string
	Permissions []string
}

func (p Principal) IsAnonymous() bool {
	return p.Kind == "" || p.Kind == PrincipalAnonymous
}

func (p Principal) IsWorker() bool {
	return p.Kind == PrincipalWorker
}
