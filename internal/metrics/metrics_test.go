package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginOutcome_FailuresOnlyForRejected(t *testing.T) {
	p, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	p.LoginOutcome("google", "logged_in", "")
	p.LoginOutcome("google", "pending_activation", "")
	p.LoginOutcome("google", OutcomeRejected, "LOCAL_NOT_FOUND")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.LoginOutcomes.WithLabelValues("google", "pending_activation", "")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.LoginFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.LoginFailures.WithLabelValues("google", "LOCAL_NOT_FOUND")))
}

func TestNew_TwiceOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.NoError(t, err)
}

func TestInstrumentClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	p, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	c := InstrumentClient(srv.Client(), "github", p)
	resp, err := c.Get(srv.URL + "/user")
	require.NoError(t, err)
	resp.Body.Close()

	host := resp.Request.URL.Host
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ProviderRequests.WithLabelValues("github", host+"/user", "418")))
	assert.Nil(t, InstrumentClient(nil, "x", nil))
}
