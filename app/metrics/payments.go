package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		VerificationsTotal,
		VerificationDuration,
		StateTransitionsTotal,
		PaymentRequestsIssuedTotal,
		JobRunsTotal,
	)
}

var (
	// outcome: confirmed|not_found|rejected|error
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solana_pay_verifications_total",
			Help: "On-chain payment verification attempts by outcome and RPC endpoint.",
		},
		[]string{"outcome", "endpoint"},
	)

	VerificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solana_pay_verification_duration_seconds",
			Help:    "Duration of one verification round trip against the RPC node.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solana_pay_state_transitions_total",
			Help: "Payment state transitions.",
		},
		[]string{"from", "to"},
	)

	PaymentRequestsIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solana_pay_payment_requests_issued_total",
			Help: "Payment URIs handed out, split by whether the stored reference was reused.",
		},
		[]string{"reused"},
	)

	// result: ok|error
	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solana_pay_job_runs_total",
			Help: "Background job batch runs by job and result.",
		},
		[]string{"job", "result"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ObserveVerification(outcome, endpoint string, elapsed time.Duration) {
	VerificationsTotal.WithLabelValues(norm(outcome), norm(endpoint)).Inc()
	VerificationDuration.WithLabelValues(norm(outcome)).Observe(elapsed.Seconds())
}

func IncStateTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	StateTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func IncPaymentRequestIssued(reused bool) {
	PaymentRequestsIssuedTotal.WithLabelValues(strconv.FormatBool(reused)).Inc()
}

func IncJobRun(job string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	JobRunsTotal.WithLabelValues(norm(job), result).Inc()
}
