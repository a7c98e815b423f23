package middlewares

import (
	"context"

	"github.com/redhatinsights/platform-go-middlewares/v2/identity"
)

// Principal is the authenticated caller of an api request
type Principal interface {
	GetOrgID() string
	// Describe names the caller in audit logs
	Describe() string
}

type key int

var principalKey key

type serviceToServicePrincipal struct {
	clientID, orgID string
}

func (sp serviceToServicePrincipal) GetOrgID() string {
	return sp.orgID
}

func (sp serviceToServicePrincipal) Describe() string {
	return "service:" + sp.clientID
}

type identityPrincipal struct {
	identityType, orgID string
}

func (ip identityPrincipal) GetOrgID() string {
	return ip.orgID
}

func (ip identityPrincipal) Describe() string {
	return "identity:" + ip.identityType
}

// GetPrincipal returns the caller recorded by whichever authentication
// method accepted the request.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	if p, ok := ctx.Value(principalKey).(serviceToServicePrincipal); ok {
		return p, true
	}

	id, ok := ctx.Value(identity.Key).(identity.XRHID)
	if !ok {
		return nil, false
	}

	orgID := id.Identity.OrgID
	if orgID == "" {
		orgID = id.Identity.Internal.OrgID
	}
	return identityPrincipal{identityType: id.Identity.Type, orgID: orgID}, true
}
