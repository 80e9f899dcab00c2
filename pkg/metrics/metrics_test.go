package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCollectors(reg)

	before := testutil.ToFloat64(AuthOperations.WithLabelValues("login", "success"))
	AuthOperations.WithLabelValues("login", "success").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(AuthOperations.WithLabelValues("login", "success")))

	n, err := testutil.GatherAndCount(reg, "storefront_auth_operations_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)

	require.Panics(t, func() { RegisterCollectors(reg) }, "double registration must fail loudly")
}
