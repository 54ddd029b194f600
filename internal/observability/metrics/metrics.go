package metrics

import (
	"database/sql"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "greenhouse_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	ingestReadings prometheus.Counter

	commandEnqueued prometheus.Counter
	commandPolls    prometheus.Counter
	commandResults  *prometheus.CounterVec
	commandExpired  prometheus.Counter

	alarmsRaised prometheus.Counter

	mqttMessages *prometheus.CounterVec
)

// Init registers observability metrics and a DB connection gauge.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total telemetry ingest requests by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Telemetry ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		ingestReadings = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_readings_total",
				Help: "Total accepted sensor readings",
			},
		)

		commandEnqueued = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_enqueued_total",
				Help: "Total enqueued commands",
			},
		)
		commandPolls = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_polls_total",
				Help: "Total device poll requests",
			},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total command completion reports by status",
			},
			[]string{"status"},
		)
		commandExpired = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_expired_total",
				Help: "Total pending commands failed by the expiry janitor",
			},
		)

		alarmsRaised = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_raised_total",
				Help: "Total threshold alarms raised",
			},
		)

		mqttMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_messages_total",
				Help: "Total MQTT telemetry messages by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestLatency,
			ingestReadings,
			commandEnqueued,
			commandPolls,
			commandResults,
			commandExpired,
			alarmsRaised,
			mqttMessages,
		)

		if db != nil {
			prometheus.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: metricPrefix + "db_open_connections",
					Help: "Open database connections",
				},
				func() float64 { return float64(db.Stats().OpenConnections) },
			))
		}
	})
}

// ObserveIngest records one ingest request.
func ObserveIngest(ok bool, seconds float64, readings int) {
	if ingestRequests == nil {
		return
	}
	result := resultSuccess
	if !ok {
		result = resultError
	}
	ingestRequests.WithLabelValues(result).Inc()
	ingestLatency.WithLabelValues(result).Observe(seconds)
	if ok && readings > 0 {
		ingestReadings.Add(float64(readings))
	}
}

// IncCommandEnqueued counts an accepted enqueue.
func IncCommandEnqueued() {
	if commandEnqueued != nil {
		commandEnqueued.Inc()
	}
}

// IncCommandPoll counts a device poll.
func IncCommandPoll() {
	if commandPolls != nil {
		commandPolls.Inc()
	}
}

// IncCommandResult counts a completion report by terminal status.
func IncCommandResult(status string) {
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// AddCommandExpired counts pending commands failed by the janitor.
func AddCommandExpired(count int) {
	if commandExpired != nil && count > 0 {
		commandExpired.Add(float64(count))
	}
}

// IncAlarmRaised counts a raised alarm.
func IncAlarmRaised() {
	if alarmsRaised != nil {
		alarmsRaised.Inc()
	}
}

// IncMQTTMessage counts an MQTT telemetry message.
func IncMQTTMessage(ok bool) {
	if mqttMessages == nil {
		return
	}
	result := resultSuccess
	if !ok {
		result = resultError
	}
	mqttMessages.WithLabelValues(result).Inc()
}
