// Package metrics registers the Prometheus collectors for the agent job
// lifecycle. The /metrics endpoint is mounted by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_agent_jobs_started_total",
		Help: "Number of asynchronous agent jobs handed off to the poller.",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_agent_jobs_completed_total",
		Help: "Number of agent jobs that reached terminal success.",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_agent_jobs_failed_total",
		Help: "Number of agent jobs that reached terminal failure, including poll deadline expiry.",
	})

	JobsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_agent_jobs_cancelled_total",
		Help: "Number of agent jobs cancelled by an operator.",
	})

	SyncResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_agent_sync_responses_total",
		Help: "Number of chat submissions answered synchronously, without a job.",
	})

	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_agent_poll_ticks_total",
		Help: "Number of job status polls issued.",
	})
)
