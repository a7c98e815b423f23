package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle                   State = "idle"
	StateAuthenticating         State = "authenticating"
	StateFetching               State = "fetching"
	StateNormalizing            State = "normalizing"
	StateReconciling            State = "reconciling"
	StateImportingOrganizations State = "importing_organizations"
	StateCompleted              State = "completed"
	StateFailed                 State = "failed"
)

// transition logs a state change of one run.  Fetching, Normalizing and
// Reconciling are entered once per entity type and carry its name.
func transition(log *logrus.Entry, from State, to State) State {
	metrics.stateTransitionCount.With(prometheus.Labels{"state": string(to)}).Inc()
	log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("Sync run state transition")
	return to
}
