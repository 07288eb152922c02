// Package protocol names the actions and request parameters of the
// cross-domain handshake.
package protocol

// Action is a handshake step.
type Action string

const (
	CheckLoginStatus Action = "domainmap-check-login-status"
	AuthorizeUser    Action = "domainmap-authorize-user"
	PropagateUser    Action = "domainmap-propagate-user"
	LogoutUser       Action = "domainmap-logout-user"
)

// Actions lists every known action.
var Actions = []Action{CheckLoginStatus, AuthorizeUser, PropagateUser, LogoutUser}

func (a Action) String() string {
	return string(a)
}

// Known reports whether a is one of the handshake actions.
func (a Action) Known() bool {
	for _, k := range Actions {
		if a == k {
			return true
		}
	}
	return false
}

// Request parameters.
const (
	// ParamRouting selects the action on the SSO endpoint.
	ParamRouting = "dm_action"
	// ParamAjaxAction selects the action on the ajax endpoint.
	ParamAjaxAction = "action"
	ParamAuth       = "auth"
	ParamDomain     = "domain"
	ParamRedirectTo = "redirect_to"
)

// Logout marker carried on the redirect after a logout.
const (
	MarkerKey   = "__domainmap_action"
	MarkerValue = string(LogoutUser)
)

// DefaultEndpointName is the path segment (or query key) of the SSO endpoint.
const DefaultEndpointName = "dm-sso-endpoint"
