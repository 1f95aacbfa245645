package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLabels_toPrometheusLabels(t *testing.T) {
	tests := []struct {
		name     string
		labels   Labels
		expected prometheus.Labels
	}{
		{
			name:     "empty labels",
			labels:   Labels{},
			expected: prometheus.Labels{},
		},
		{
			name: "all labels set",
			labels: Labels{
				EVMChainID:    43114,
				Environment:   "production",
				Region:        "us-east-1",
				CloudProvider: "aws",
			},
			expected: prometheus.Labels{
				"evm_chain_id":   "43114",
				"environment":    "production",
				"region":         "us-east-1",
				"cloud_provider": "aws",
			},
		},
		{
			name: "zero chain ID excluded",
			labels: Labels{
				EVMChainID:  0,
				Environment: "test",
			},
			expected: prometheus.Labels{
				"environment": "test",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.labels.toPrometheusLabels()
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	// Unlabelled collectors are exported right away
	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)
}

func TestNewWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewWithLabels(reg, Labels{EVMChainID: 43114, Environment: "test"})
	require.NoError(t, err)

	m.RecordBlockProcessed(100, nil, 0.1)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() != "streamline_last_processed_block" {
			continue
		}
		found = true
		require.NotEmpty(t, mf.GetMetric())
		labelMap := make(map[string]string)
		for _, label := range mf.GetMetric()[0].GetLabel() {
			labelMap[label.GetName()] = label.GetValue()
		}
		require.Equal(t, "43114", labelMap["evm_chain_id"])
		require.Equal(t, "test", labelMap["environment"])
	}
	require.True(t, found)
}

func TestNew_RegistrationError(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	// Second registration should fail (duplicate metrics)
	m, err := New(reg)
	require.Nil(t, m, "expected nil metrics on duplicate registration")

	var alreadyRegistered prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &alreadyRegistered)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.IncError(ErrTypeScript)
		m.RecordBlockProcessed(1, nil, 0.1)
		m.RecordAccessorCall("event", "erc20", "transfer", false)
		m.AddEventsDecoded("erc20", "transfer", 3)
		m.IncConversionFailure("address_filter")
		m.RecordStoreWrite("set", false)
		m.AddDeltasCommitted(2)
		m.IncRPCInFlight()
		m.DecRPCInFlight()
		m.RecordRPCCall("eth_call", nil, 0.5)
		m.RecordPartitionAssignment([]int32{0, 1})
		m.RecordPartitionRevocation()
		m.RecordMessageReceived(0)
		m.RecordMessageProcessed(0, nil, 0.1)
		m.RecordDLQProduction(nil)
		m.RecordKafkaError(true)
	})
}

func TestMetrics_IncError(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncError(ErrTypeScript)
	m.IncError(ErrTypeScript)
	m.IncError(ErrTypeSink)

	require.Equal(t, float64(2), testutil.ToFloat64(m.errors.WithLabelValues(ErrTypeScript)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues(ErrTypeSink)))
}

func TestMetrics_RecordBlockProcessed(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordBlockProcessed(10, nil, 0.01)
	m.RecordBlockProcessed(11, errors.New("boom"), 0.02)

	require.Equal(t, float64(1), testutil.ToFloat64(m.blocksProcessed.WithLabelValues(StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.blocksProcessed.WithLabelValues(StatusError)))
	// Failed blocks do not move the gauge
	require.Equal(t, float64(10), testutil.ToFloat64(m.lastProcessedBlock))
	require.Equal(t, 1, testutil.CollectAndCount(m.blockProcessingDuration))
}

func TestMetrics_AccessorCalls(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordAccessorCall("event", "erc20", "transfer", false)
	m.RecordAccessorCall("event", "erc20", "transfer", true)
	m.RecordAccessorCall("call", "erc20", "decimals", false)
	m.AddEventsDecoded("erc20", "transfer", 4)
	m.AddEventsDecoded("erc20", "transfer", 0)

	require.Equal(t, float64(1), testutil.ToFloat64(m.accessorCalls.WithLabelValues("event", "erc20", "transfer", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.accessorCalls.WithLabelValues("event", "erc20", "transfer", StatusEmpty)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.accessorCalls.WithLabelValues("call", "erc20", "decimals", StatusSuccess)))
	require.Equal(t, float64(4), testutil.ToFloat64(m.eventsDecoded.WithLabelValues("erc20", "transfer")))
}

func TestMetrics_StoreWrites(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordStoreWrite("set", false)
	m.RecordStoreWrite("set", false)
	m.RecordStoreWrite("set", true)
	m.AddDeltasCommitted(2)

	require.Equal(t, float64(2), testutil.ToFloat64(m.storeWrites.WithLabelValues("set")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.storeWritesDropped.WithLabelValues("set")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.deltasCommitted))
}

func TestMetrics_RPC(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncRPCInFlight()
	m.IncRPCInFlight()
	m.DecRPCInFlight()
	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcInFlight))

	m.RecordRPCCall("eth_call", nil, 0.1)
	m.RecordRPCCall("eth_call", errors.New("rpc error"), 0.2)
	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_call", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rpcCalls.WithLabelValues("eth_call", StatusError)))
}

func TestMetrics_RebalanceScenario(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordPartitionAssignment([]int32{0, 1, 2})
	require.Equal(t, float64(3), testutil.ToFloat64(m.assignedPartitions))

	m.RecordPartitionRevocation()
	require.Equal(t, float64(0), testutil.ToFloat64(m.assignedPartitions))

	m.RecordPartitionAssignment([]int32{1})
	require.Equal(t, float64(1), testutil.ToFloat64(m.assignedPartitions))
	require.Equal(t, float64(2), testutil.ToFloat64(m.rebalanceEvents.WithLabelValues("assigned")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rebalanceEvents.WithLabelValues("revoked")))
}

func TestMetrics_ConsumerMessages(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordMessageReceived(0)
	m.RecordMessageReceived(0)
	m.RecordMessageProcessed(0, nil, 0.1)
	m.RecordMessageProcessed(0, errors.New("failed"), 0.1)
	m.RecordDLQProduction(nil)
	m.RecordKafkaError(false)

	require.Equal(t, float64(2), testutil.ToFloat64(m.messagesReceived.WithLabelValues("0")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesProcessed.WithLabelValues("0", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesProcessed.WithLabelValues("0", StatusError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.dlqProduced.WithLabelValues(StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.kafkaErrors.WithLabelValues("non_fatal")))
}
