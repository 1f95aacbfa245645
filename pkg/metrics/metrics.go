package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "streamline"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"
	StatusEmpty   = "empty"

	Accessor      = "accessor"
	Store         = "store"
	KafkaConsumer = "kafka_consumer"
	Consumer      = "consumer"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple streamline instances.
type Labels struct {
	EVMChainID    uint64 // EVM chain ID (e.g., 43114 for C-Chain mainnet)
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.EVMChainID != 0 {
		labels["evm_chain_id"] = strconv.FormatUint(l.EVMChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Block processing
	blocksProcessed         *prometheus.CounterVec
	lastProcessedBlock      prometheus.Gauge
	blockProcessingDuration prometheus.Histogram
	errors                  *prometheus.CounterVec

	// Script bridge
	accessorCalls      *prometheus.CounterVec
	eventsDecoded      *prometheus.CounterVec
	conversionFailures *prometheus.CounterVec

	// Store
	storeWrites        *prometheus.CounterVec
	storeWritesDropped *prometheus.CounterVec
	deltasCommitted    prometheus.Counter

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// Kafka consumer rebalance metrics
	rebalanceEvents    *prometheus.CounterVec
	assignedPartitions prometheus.Gauge

	// Consumer message processing metrics
	messagesReceived          *prometheus.CounterVec   // by partition
	messagesProcessed         *prometheus.CounterVec   // by partition, status
	messageProcessingDuration *prometheus.HistogramVec // by partition

	// DLQ production metrics
	dlqProduced *prometheus.CounterVec // by status

	// Consumer error metrics
	kafkaErrors *prometheus.CounterVec // by severity (fatal/non_fatal)
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., evm_chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	// Wrap the registerer with constant labels if any are provided
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

// newMetrics is the internal constructor that creates and registers all metrics.
func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		blocksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks evaluated by status",
		}, []string{"status"}),
		lastProcessedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_processed_block",
			Help:      "Height of the last block evaluated successfully",
		}),
		blockProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "block_processing_duration_seconds",
			Help:      "Time to evaluate a single block end-to-end",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		accessorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Accessor,
			Name:      "calls_total",
			Help:      "Total accessor invocations by kind, contract, accessor and status",
		}, []string{"kind", "contract", "accessor", "status"}),
		eventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Accessor,
			Name:      "events_decoded_total",
			Help:      "Total decoded events returned to scripts by contract and event",
		}, []string{"contract", "accessor"}),
		conversionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Accessor,
			Name:      "conversion_failures_total",
			Help:      "Total dynamic values that could not be converted, by site",
		}, []string{"site"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "writes_total",
			Help:      "Total store writes accepted by operation",
		}, []string{"operation"}),
		storeWritesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "writes_dropped_total",
			Help:      "Total store writes dropped because of unconvertible input, by operation",
		}, []string{"operation"}),
		deltasCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "deltas_committed_total",
			Help:      "Total deltas applied to the backing store",
		}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			// Buckets cover typical RPC latencies: 1ms, 5ms, 10ms, 25ms, 50ms,
			// 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		rebalanceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "rebalance_events_total",
			Help:      "Total number of consumer group rebalance events by type",
		}, []string{"type"}),
		assignedPartitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "assigned_partitions",
			Help:      "Current number of partitions assigned to this consumer",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_received_total",
			Help:      "Total number of messages polled from Kafka by partition",
		}, []string{"partition"}),
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_processed_total",
			Help:      "Total number of messages processed by partition and status",
		}, []string{"partition", "status"}),
		messageProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "message_processing_duration_seconds",
			Help:      "Message dispatch duration including processing and DLQ publish by partition",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"partition"}),
		dlqProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "dlq_produced_total",
			Help:      "Total number of messages published to the dead letter queue by status",
		}, []string{"status"}),
		kafkaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "kafka_errors_total",
			Help:      "Total number of Kafka errors received by severity (fatal/non_fatal)",
		}, []string{"severity"}),
	}

	err := errors.Join(
		reg.Register(m.blocksProcessed),
		reg.Register(m.lastProcessedBlock),
		reg.Register(m.blockProcessingDuration),
		reg.Register(m.errors),
		reg.Register(m.accessorCalls),
		reg.Register(m.eventsDecoded),
		reg.Register(m.conversionFailures),
		reg.Register(m.storeWrites),
		reg.Register(m.storeWritesDropped),
		reg.Register(m.deltasCommitted),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.rebalanceEvents),
		reg.Register(m.assignedPartitions),
		reg.Register(m.messagesReceived),
		reg.Register(m.messagesProcessed),
		reg.Register(m.messageProcessingDuration),
		reg.Register(m.dlqProduced),
		reg.Register(m.kafkaErrors),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type constants used with IncError.
const (
	ErrTypeInvalidEnvelope = "invalid_envelope"
	ErrTypeInvalidBlock    = "invalid_block"
	ErrTypeScript          = "script"
	ErrTypeStoreCommit     = "store_commit"
	ErrTypeSink            = "sink"
	ErrTypePublish         = "publish"
)

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// RecordBlockProcessed records the outcome of one block evaluation.
func (m *Metrics) RecordBlockProcessed(number uint64, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.blocksProcessed.WithLabelValues(status).Inc()
	m.blockProcessingDuration.Observe(durationSeconds)
	if err == nil {
		m.lastProcessedBlock.Set(float64(number))
	}
}

// RecordAccessorCall records an accessor invocation. A call that returned
// the empty value is recorded with StatusEmpty.
func (m *Metrics) RecordAccessorCall(kind, contract, accessor string, empty bool) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if empty {
		status = StatusEmpty
	}
	m.accessorCalls.WithLabelValues(kind, contract, accessor, status).Inc()
}

// AddEventsDecoded records decoded events returned by an event accessor.
func (m *Metrics) AddEventsDecoded(contract, accessor string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.eventsDecoded.WithLabelValues(contract, accessor).Add(float64(count))
}

// IncConversionFailure records a dynamic value that could not be converted.
func (m *Metrics) IncConversionFailure(site string) {
	if m == nil {
		return
	}
	m.conversionFailures.WithLabelValues(site).Inc()
}

// RecordStoreWrite records a store write. Dropped writes consumed no ordinal.
func (m *Metrics) RecordStoreWrite(operation string, dropped bool) {
	if m == nil {
		return
	}
	if dropped {
		m.storeWritesDropped.WithLabelValues(operation).Inc()
		return
	}
	m.storeWrites.WithLabelValues(operation).Inc()
}

// AddDeltasCommitted records deltas applied to the backing store.
func (m *Metrics) AddDeltasCommitted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.deltasCommitted.Add(float64(count))
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordPartitionAssignment records when partitions are assigned during a consumer group rebalance.
func (m *Metrics) RecordPartitionAssignment(partitions []int32) {
	if m == nil {
		return
	}
	m.rebalanceEvents.WithLabelValues("assigned").Inc()
	m.assignedPartitions.Set(float64(len(partitions)))
}

// RecordPartitionRevocation records when partitions are revoked during a consumer group rebalance.
func (m *Metrics) RecordPartitionRevocation() {
	if m == nil {
		return
	}
	m.rebalanceEvents.WithLabelValues("revoked").Inc()
	// Cleared until the next assignment
	m.assignedPartitions.Set(0)
}

// RecordMessageReceived increments the received counter when a message is polled from Kafka.
func (m *Metrics) RecordMessageReceived(partition int32) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(strconv.Itoa(int(partition))).Inc()
}

// RecordMessageProcessed records a message processing outcome with duration.
// Pass nil error for successful processing, non-nil for failures.
func (m *Metrics) RecordMessageProcessed(partition int32, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	partitionLabel := strconv.Itoa(int(partition))

	status := StatusSuccess
	if err != nil {
		status = StatusError
	}

	m.messagesProcessed.WithLabelValues(partitionLabel, status).Inc()
	m.messageProcessingDuration.WithLabelValues(partitionLabel).Observe(durationSeconds)
}

// RecordDLQProduction records a DLQ publish attempt.
func (m *Metrics) RecordDLQProduction(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.dlqProduced.WithLabelValues(status).Inc()
}

// RecordKafkaError records a Kafka error by severity.
func (m *Metrics) RecordKafkaError(fatal bool) {
	if m == nil {
		return
	}
	severity := "non_fatal"
	if fatal {
		severity = "fatal"
	}
	m.kafkaErrors.WithLabelValues(severity).Inc()
}
