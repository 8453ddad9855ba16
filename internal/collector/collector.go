// Package collector runs the metric catalog against the database on
// each scrape and converts the results into Prometheus samples. A
// failing query fails only its own metric; the exporter health gauge is
// emitted on every pass, even when the database is down.
package collector

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mailman-tools/mailman-exporter/internal/db"
	"github.com/mailman-tools/mailman-exporter/internal/registry"
)

// Querier is the slice of the database client the collector needs.
type Querier interface {
	Ping(ctx context.Context) error
	Select(ctx context.Context, stmt string) ([]db.Row, error)
}

// Collector implements prometheus.Collector over the metric catalog.
// It holds no per-scrape state, so concurrent scrapes only share the
// Querier, which is safe for concurrent use.
type Collector struct {
	q       Querier
	defs    []registry.Def
	descs   []*prometheus.Desc
	timeout time.Duration

	upDesc       *prometheus.Desc
	durationDesc *prometheus.Desc
}

// New builds a Collector for the given catalog. The timeout bounds one
// whole collection pass so a locked table cannot hang the scrape forever.
func New(q Querier, defs []registry.Def, timeout time.Duration) *Collector {
	descs := make([]*prometheus.Desc, len(defs))
	for i, def := range defs {
		descs[i] = prometheus.NewDesc(
			prometheus.BuildFQName(registry.Namespace, "", def.Name),
			def.Help, def.Labels, nil)
	}

	return &Collector{
		q:       q,
		defs:    defs,
		descs:   descs,
		timeout: timeout,
		upDesc: prometheus.NewDesc(
			prometheus.BuildFQName(registry.Namespace, "", "exporter_up"),
			"Whether the Mailman exporter scrape is working", nil, nil),
		durationDesc: prometheus.NewDesc(
			prometheus.BuildFQName(registry.Namespace, "", "scrape_duration_seconds"),
			"Time taken to scrape Mailman DB", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
	ch <- c.upDesc
	ch <- c.durationDesc
}

// Collect implements prometheus.Collector. Each call is one independent
// collection pass; nothing is cached between scrapes.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.q.Ping(ctx); err != nil {
		log.Printf("[collector] scrape failed: %v", err)
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 0)
		return
	}

	for i, def := range c.defs {
		c.collectOne(ctx, def, c.descs[i], ch)
	}

	ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.durationDesc, prometheus.GaugeValue,
		time.Since(start).Seconds())
}

// collectOne runs one catalog entry and emits a sample per row. Any
// failure is logged with the metric name and suppresses only this
// metric; a non-numeric value drops only its row.
func (c *Collector) collectOne(ctx context.Context, def registry.Def, desc *prometheus.Desc, ch chan<- prometheus.Metric) {
	rows, err := c.q.Select(ctx, def.Query)
	if err != nil {
		log.Printf("[collector] %s: %v", def.Name, err)
		return
	}

	for _, row := range rows {
		if len(row) != len(def.Labels)+1 {
			log.Printf("[collector] %s: query returned %d columns, want %d",
				def.Name, len(row), len(def.Labels)+1)
			return
		}

		value, err := toFloat(row[len(row)-1])
		if err != nil {
			log.Printf("[collector] %s: skipping row: %v", def.Name, err)
			continue
		}

		labels := c.labelValues(def, row)
		if len(labels) != len(def.Labels) {
			log.Printf("[collector] %s: skipping row: got %d label values, want %d",
				def.Name, len(labels), len(def.Labels))
			continue
		}

		ch <- prometheus.MustNewConstMetric(desc, def.Kind, value, labels...)
	}
}

func (c *Collector) labelValues(def registry.Def, row db.Row) []string {
	if def.Transform != nil {
		return def.Transform(row)
	}
	labels := make([]string, len(def.Labels))
	for i := range def.Labels {
		labels[i] = registry.LabelValue(row[i])
	}
	return labels
}

// toFloat coerces a raw driver value into a sample value.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return float64(x.Unix()), nil
	case nil:
		return 0, fmt.Errorf("value is NULL")
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
