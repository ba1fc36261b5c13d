package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viva_polls_total",
		Help: "Session status polls by reported code (or error class)",
	}, []string{"code"})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viva_uploads_total",
		Help: "Answer upload attempts by result",
	}, []string{
		"result", // success|failure|canceled
	})

	uploadInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viva_upload_inflight",
		Help: "Answer upload requests currently in flight",
	})
)
