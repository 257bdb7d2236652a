// Package metrics defines and registers the custom Prometheus metrics of the
// account service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "account"

// ── Session metrics ───────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Labels:
//   - kind: "ADMIN" or "USER"
//   - result: "success" or the error code (e.g. "INVALID_PASSWORD")
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by account kind and result.",
	},
	[]string{"kind", "result"},
)

// TokenRenewalsTotal counts refresh-token renewals.
// Labels:
//   - kind: "ADMIN" or "USER"
//   - result: "rotated", "grace" (answered inside the grace window) or the error code
var TokenRenewalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_renewals_total",
		Help:      "Total number of token renewals, by account kind and result.",
	},
	[]string{"kind", "result"},
)

// LogoutsTotal counts logouts.
var LogoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logouts_total",
		Help:      "Total number of logouts, by account kind.",
	},
	[]string{"kind"},
)

// ── Account metrics ───────────────────────────────────────────────────────────

// AccountMutationsTotal counts successful account writes.
// Labels:
//   - kind: "ADMIN" or "USER"
//   - operation: "create", "update", "change_password" or "remove"
var AccountMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_mutations_total",
		Help:      "Total number of successful account mutations, by kind and operation.",
	},
	[]string{"kind", "operation"},
)
