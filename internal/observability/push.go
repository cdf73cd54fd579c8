package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "maxprecip"

// Push sends the run metrics to a Prometheus Pushgateway, grouped by site.
// One-shot runs exit before a scrape would see them.
func (m *Metrics) Push(ctx context.Context, url, site string) error {
	p := push.New(url, pushJob)
	if site != "" {
		p = p.Grouping("site", site)
	}
	for _, c := range m.Collectors() {
		p = p.Collector(c)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
