package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveVerification(t *testing.T) {
	before := testutil.ToFloat64(VerificationsTotal.WithLabelValues("confirmed", "devnet"))
	ObserveVerification(" Confirmed ", "DEVNET", 120*time.Millisecond)
	after := testutil.ToFloat64(VerificationsTotal.WithLabelValues("confirmed", "devnet"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v -> %v", before, after)
	}
}

func TestIncStateTransitionUsesNoneForMissingSource(t *testing.T) {
	before := testutil.ToFloat64(StateTransitionsTotal.WithLabelValues("none", "new"))
	IncStateTransition("", "new")
	if got := testutil.ToFloat64(StateTransitionsTotal.WithLabelValues("none", "new")); got-before != 1 {
		t.Fatalf("expected none->new to grow by 1, got %v -> %v", before, got)
	}
}

func TestIncJobRun(t *testing.T) {
	IncJobRun("reconcile", nil)
	IncJobRun("reconcile", errors.New("boom"))
	if testutil.ToFloat64(JobRunsTotal.WithLabelValues("reconcile", "ok")) < 1 {
		t.Fatal("expected ok run to be counted")
	}
	if testutil.ToFloat64(JobRunsTotal.WithLabelValues("reconcile", "error")) < 1 {
		t.Fatal("expected failed run to be counted")
	}
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	MustRegister()
	MustRegister()
}
