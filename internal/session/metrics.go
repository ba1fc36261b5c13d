package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viva_captures_total",
		Help: "Finished captures by stop reason (user, deadline, hard_timeout, aborted)",
	}, []string{"reason"})

	redirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viva_redirects_total",
		Help: "Terminal engine transitions by outcome",
	}, []string{"outcome"})
)
