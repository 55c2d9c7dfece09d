package spawn

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики очереди. Нулевой указатель допустим.
type Metrics struct {
	enqueued  prometheus.Counter
	processed prometheus.Counter
	dropped   prometheus.Counter
	failed    prometheus.Counter
	clears    prometheus.Counter
	length    prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики в reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "constructs",
			Subsystem: "spawn_queue",
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		enqueued:  counter("enqueued_total", "Регионов поставлено в очередь."),
		processed: counter("processed_total", "Регионов передано вычислителю без ошибки."),
		dropped:   counter("dropped_total", "Регионов отброшено: уровень или чанк выгружен."),
		failed:    counter("failed_total", "Ошибок и паник вычислителя."),
		clears:    counter("occupancy_clears_total", "Очисток множества занятых чанков."),
		length: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "constructs",
			Subsystem: "spawn_queue",
			Name:      "length",
			Help:      "Текущая длина очереди.",
		}),
	}
	for _, c := range []prometheus.Collector{m.enqueued, m.processed, m.dropped, m.failed, m.clears, m.length} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(o Outcome) {
	if m == nil {
		return
	}
	switch o {
	case OutcomeProcessed:
		m.processed.Inc()
	case OutcomeFailed:
		m.failed.Inc()
	case OutcomeRegionUnloaded:
		m.dropped.Inc()
	}
}

func (m *Metrics) enqueue(length int) {
	if m == nil {
		return
	}
	m.enqueued.Inc()
	m.length.Set(float64(length))
}

func (m *Metrics) setLength(length int) {
	if m == nil {
		return
	}
	m.length.Set(float64(length))
}

func (m *Metrics) cleared() {
	if m == nil {
		return
	}
	m.clears.Inc()
}
