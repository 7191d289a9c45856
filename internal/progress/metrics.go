package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checkpointSaves = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bookmarks_checkpoint_saves_total",
	Help: "Completed checkpoint file writes.",
})
