package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "lp_hedge_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &Metrics{
		DecisionsEvaluated: promCounter{newCounter("decisions_evaluated_total", "Total number of rebalance decisions evaluated.")},
		TriggersFired:      promCounter{newCounter("triggers_fired_total", "Total number of auto-mode rebalance triggers fired.")},
		OrdersSubmitted:    promCounter{newCounter("orders_submitted_total", "Total number of orders accepted by the gateway.")},
		OrdersRejected:     promCounter{newCounter("orders_rejected_total", "Total number of orders rejected after retry exhaustion.")},
		OrdersSucceeded:    promCounter{newCounter("orders_succeeded_total", "Total number of orders resolved as filled.")},
		OrdersTimedOut:     promCounter{newCounter("orders_timed_out_total", "Total number of orders resolved by timeout.")},
		StreamReconnects:   promCounter{newCounter("stream_reconnects_total", "Total number of execution stream reconnects.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
