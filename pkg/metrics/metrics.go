// Package metrics exports session events as Prometheus counters.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/logger"
	"github.com/iniwex5/shaiya-go/pkg/session"
)

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Collector implements session.Observer.
type Collector struct {
	handshakes *prometheus.CounterVec
	frames     *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	rejected   *prometheus.CounterVec
}

var _ session.Observer = (*Collector)(nil)

// NewCollector creates the counters and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shaiya_handshakes_total",
				Help: "Number of completed session handshakes",
			},
			[]string{"role", "suite"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shaiya_frames_total",
				Help: "Number of frames encoded or decoded",
			},
			[]string{"direction"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shaiya_frame_bytes_total",
				Help: "Plaintext bytes carried in frames",
			},
			[]string{"direction"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shaiya_frames_rejected_total",
				Help: "Number of frames or handshakes refused",
			},
			[]string{"reason"},
		),
	}
	for _, col := range []prometheus.Collector{c.handshakes, c.frames, c.bytes, c.rejected} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) HandshakeCompleted(role session.Role, suite crypto.Suite) {
	c.handshakes.With(prometheus.Labels{"role": role.String(), "suite": suite.String()}).Inc()
}

func (c *Collector) FrameEncoded(size int) {
	c.frames.WithLabelValues(DirectionSent).Inc()
	c.bytes.WithLabelValues(DirectionSent).Add(float64(size))
}

func (c *Collector) FrameDecoded(size int) {
	c.frames.WithLabelValues(DirectionReceived).Inc()
	c.bytes.WithLabelValues(DirectionReceived).Add(float64(size))
}

func (c *Collector) FrameRejected(reason session.RejectReason) {
	c.rejected.WithLabelValues(string(reason)).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	log = logger.OrGlobal(log)
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("metrics shutdown", logger.Err(err))
		}
	})
	defer stop()

	log.Info("metrics listening", logger.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
