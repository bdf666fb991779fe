package healthmetrics

import (
	"context"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/log"
	client "github.com/influxdata/influxdb1-client"

	"github.com/flarelayer/arbbot/internal/bus"
)

// InfluxConfig mirrors spec.md §6's optional influxdb config block.
type InfluxConfig struct {
	URL      string
	Database string
	Tags     map[string]string
}

// MetricsWriter drains the metrics bus and forwards each tick to an
// InfluxDB v1 sink. The bus itself already provides bounded buffering
// with drop-oldest overflow (internal/bus), so this actor adds no
// further buffering of its own: it is the core's only obligation here
// per spec.md §4.K ("out of core" beyond that guarantee).
type MetricsWriter struct {
	cfg    InfluxConfig
	client *client.Client

	metrics *bus.Subscription[MetricsEvent]
	latency *bus.Subscription[EstimationLatencyEvent]

	log log.Logger
}

// NewMetricsWriter constructs a writer. If cfg.URL is empty, Run
// drains both buses but discards every point instead of dialing out —
// InfluxDB is an optional sink (spec.md §6 "(optional)").
func NewMetricsWriter(cfg InfluxConfig, metrics *bus.Bus[MetricsEvent], latency *bus.Bus[EstimationLatencyEvent]) (*MetricsWriter, error) {
	w := &MetricsWriter{cfg: cfg, metrics: metrics.Subscribe(), latency: latency.Subscribe(), log: log.New("actor", "metrics_writer")}
	if cfg.URL == "" {
		return w, nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	c, err := client.NewClient(client.Config{URL: *u})
	if err != nil {
		return nil, err
	}
	w.client = c
	return w, nil
}

// Run implements bus.Worker, fanning in both metrics sources.
func (w *MetricsWriter) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- w.drainMetrics(ctx) }()
	go func() { errCh <- w.drainLatency(ctx) }()
	return <-errCh
}

func (w *MetricsWriter) drainMetrics(ctx context.Context) error {
	for {
		env, err := w.metrics.Recv(ctx)
		if err != nil {
			return err
		}
		w.writePoint("searcher_tick", map[string]interface{}{
			"path_count":     env.Value.PathCount,
			"accepted_count": env.Value.AcceptedCount,
			"elapsed_micros": env.Value.ElapsedMicros,
		}, map[string]string{"origin": env.Value.Origin})
	}
}

func (w *MetricsWriter) drainLatency(ctx context.Context) error {
	for {
		env, err := w.latency.Recv(ctx)
		if err != nil {
			return err
		}
		w.writePoint("estimation_latency", map[string]interface{}{"micros": env.Value.Micros}, nil)
	}
}

func (w *MetricsWriter) writePoint(name string, fields map[string]interface{}, tags map[string]string) {
	if w.client == nil {
		return
	}
	merged := make(map[string]string, len(w.cfg.Tags)+len(tags))
	for k, v := range w.cfg.Tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}

	bp := client.BatchPoints{
		Points: []client.Point{{
			Measurement: name,
			Tags:        merged,
			Fields:      fields,
			Time:        time.Now(),
		}},
		Database: w.cfg.Database,
	}
	if _, err := w.client.Write(bp); err != nil {
		w.log.Debug("influxdb write failed, dropping point", "measurement", name, "err", err)
	}
}
