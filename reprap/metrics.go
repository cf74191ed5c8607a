package reprap

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a prometheus.Collector scraping live counters off an Engine
// on each Collect call, grounded on runZeroInc-sockstats's
// pkg/exporter.TCPInfoCollector (a Describe/Collect pair that reads
// through to live kernel state rather than pre-updating vectors).
type Metrics struct {
	engine *Engine

	sendTokenDesc       *prometheus.Desc
	timeoutConsecDesc   *prometheus.Desc
	resendCountDesc     *prometheus.Desc
	currentLineDesc     *prometheus.Desc
	sendQueueLenDesc    *prometheus.Desc
	commandQueueLenDesc *prometheus.Desc
}

// NewMetrics builds a Collector for engine. Callers register it with
// prometheus.MustRegister (or their own registerer) themselves.
func NewMetrics(engine *Engine) *Metrics {
	return &Metrics{
		engine: engine,
		sendTokenDesc: prometheus.NewDesc(
			"reprap_send_token_level", "Current send token counter value.", nil, nil),
		timeoutConsecDesc: prometheus.NewDesc(
			"reprap_consecutive_timeouts", "Consecutive communication timeouts seen.", nil, nil),
		resendCountDesc: prometheus.NewDesc(
			"reprap_resend_total", "Total resend windows entered since connect.", nil, nil),
		currentLineDesc: prometheus.NewDesc(
			"reprap_current_line_number", "Current outgoing line number counter.", nil, nil),
		sendQueueLenDesc: prometheus.NewDesc(
			"reprap_send_queue_length", "Items pending in the send queue.", nil, nil),
		commandQueueLenDesc: prometheus.NewDesc(
			"reprap_command_queue_length", "Items pending in the command queue.", nil, nil),
	}
}

func (m *Metrics) Describe(descs chan<- *prometheus.Desc) {
	descs <- m.sendTokenDesc
	descs <- m.timeoutConsecDesc
	descs <- m.resendCountDesc
	descs <- m.currentLineDesc
	descs <- m.sendQueueLenDesc
	descs <- m.commandQueueLenDesc
}

func (m *Metrics) Collect(metrics chan<- prometheus.Metric) {
	e := m.engine

	metrics <- prometheus.MustNewConstMetric(m.sendTokenDesc, prometheus.GaugeValue, float64(e.sendToken.Counter()))
	metrics <- prometheus.MustNewConstMetric(m.timeoutConsecDesc, prometheus.GaugeValue, float64(e.timeoutConsecutiveSnapshot()))
	metrics <- prometheus.MustNewConstMetric(m.resendCountDesc, prometheus.CounterValue, float64(e.flags.ResendWindows()))
	metrics <- prometheus.MustNewConstMetric(m.currentLineDesc, prometheus.GaugeValue, float64(e.flags.CurrentLineNumber()))
	metrics <- prometheus.MustNewConstMetric(m.sendQueueLenDesc, prometheus.GaugeValue, float64(e.sendQueue.Len()))
	metrics <- prometheus.MustNewConstMetric(m.commandQueueLenDesc, prometheus.GaugeValue, float64(e.commandQueue.Len()))
}
