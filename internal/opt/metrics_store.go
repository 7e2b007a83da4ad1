package opt

import "sync"

var (
	mu    sync.Mutex
	store = map[string]Metrics{}
)

// RecordMetrics keeps the latest solver metrics per scenario for the
// admin metrics endpoint.
func RecordMetrics(scenarioID string, m Metrics) {
	mu.Lock()
	store[scenarioID] = m
	mu.Unlock()
}

func GetMetrics(scenarioID string) (Metrics, bool) {
	mu.Lock()
	defer mu.Unlock()
	m, ok := store[scenarioID]
	return m, ok
}

func AllMetrics() map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]Metrics, len(store))
	for k, v := range store {
		out[k] = v
	}
	return out
}
