package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	DecisionsEvaluated Counter
	TriggersFired      Counter
	OrdersSubmitted    Counter
	OrdersRejected     Counter
	OrdersSucceeded    Counter
	OrdersTimedOut     Counter
	StreamReconnects   Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		DecisionsEvaluated: n,
		TriggersFired:      n,
		OrdersSubmitted:    n,
		OrdersRejected:     n,
		OrdersSucceeded:    n,
		OrdersTimedOut:     n,
		StreamReconnects:   n,
	}
}
