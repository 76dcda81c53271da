package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordMutation(t *testing.T) {
	before := testutil.ToFloat64(mutations.WithLabelValues("create_group", OutcomeConflict))
	RecordMutation("create_group", OutcomeConflict)
	RecordMutation("create_group", OutcomeConflict)
	after := testutil.ToFloat64(mutations.WithLabelValues("create_group", OutcomeConflict))
	if after-before != 2 {
		t.Errorf("conflict count grew by %v, want 2", after-before)
	}
}

func TestObserveClosureRebuild(t *testing.T) {
	ObserveClosureRebuild(3*time.Millisecond, 42)
	if got := testutil.ToFloat64(closureRows); got != 42 {
		t.Errorf("closure_rows = %v, want 42", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	SetVersion(9)
	RecordIndexLoad("store")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		"tagrules_ledger_version 9",
		`tagrules_expand_index_loads_total{source="store"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
