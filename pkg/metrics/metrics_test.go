package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTicketIncrementsCounter(t *testing.T) {
	r := NewRecorder()
	r.ObserveTicket("success")
	r.ObserveTicket("success")
	r.ObserveTicket("partial")

	assert.Equal(t, float64(2), testutil.ToFloat64(r.ticketsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.ticketsTotal.WithLabelValues("partial")))
}

func TestObserveApprovalVerdictIncrementsCounter(t *testing.T) {
	r := NewRecorder()
	r.ObserveApprovalVerdict("approved")

	assert.Equal(t, float64(1), testutil.ToFloat64(r.approvalVerdicts.WithLabelValues("approved")))
}

func TestObserveBackendCreateRecordsCountAndDuration(t *testing.T) {
	r := NewRecorder()
	r.ObserveBackendCreate("success", 250*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.backendCreateTotal.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.backendCreateSecs))
}

func TestObserveVaultLookupIncrementsCounter(t *testing.T) {
	r := NewRecorder()
	r.ObserveVaultLookup("not_found")

	assert.Equal(t, float64(1), testutil.ToFloat64(r.vaultLookupTotal.WithLabelValues("not_found")))
}
