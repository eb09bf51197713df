package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniapp_uploads_total",
			Help: "Image uploads by variant and outcome",
		},
		[]string{"variant", "outcome"},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniapp_directory_searches_total",
			Help: "Directory page loads and searches by outcome",
		},
		[]string{"kind", "outcome"},
	)

	moderationStrikesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uniapp_moderation_strikes_total",
			Help: "Strikes recorded by image moderation",
		},
	)
)
