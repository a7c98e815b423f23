package middlewares

import (
	"context"
	"net/http"

	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/redhatinsights/platform-go-middlewares/v2/identity"
	"github.com/sirupsen/logrus"
)

const (
	authErrorMessage   = "Authentication failed"
	authErrorLogHeader = "Authentication error: "
	identityHeader     = "x-rh-identity"
	PSKClientIdHeader  = "x-psa-sync-client-id"
	PSKOrgIdHeader     = "x-psa-sync-org-id"
	PSKHeader          = "x-psa-sync-psk"
)

// AuthMiddleware allows the passage of parameters into the Authenticate middleware
type AuthMiddleware struct {
	Secrets      map[string]interface{}
	IdentityAuth func(http.Handler) http.Handler
}

// Authenticate accepts either a platform identity header or a pre-shared key
// issued to a calling service
func (amw *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(identityHeader) != "" {
			identityAuth := amw.IdentityAuth
			if identityAuth == nil {
				identityAuth = identity.EnforceIdentity
			}
			identityAuth(next).ServeHTTP(w, r)
			return
		}

		sc, err := newServiceCredentials(
			r.Header.Get(PSKClientIdHeader),
			r.Header.Get(PSKOrgIdHeader),
			r.Header.Get(PSKHeader),
		)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Authentication failure")
			http.Error(w, authErrorMessage, http.StatusUnauthorized)
			return
		}

		validator := serviceCredentialsValidator{knownServiceCredentials: amw.Secrets}
		if err := validator.validate(sc); err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err, "client_id": sc.clientID}).Debug("Authentication failure")
			http.Error(w, authErrorMessage, http.StatusUnauthorized)
			return
		}

		logger.Log.Debugf("Received service to service request from %v", sc.clientID)

		principal := serviceToServicePrincipal{clientID: sc.clientID, orgID: sc.orgID}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
