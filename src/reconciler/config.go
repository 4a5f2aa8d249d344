package reconciler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// PollInterval is the reconciliation cadence.
	PollInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"5m"`

	// LookbackWindow bounds the fetch window when the cursor is missing or
	// stale.
	LookbackWindow time.Duration `envconfig:"RECONCILE_LOOKBACK" default:"24h"`

	// CursorOverlap is subtracted from the new watermark so adjacent cycles
	// overlap slightly; idempotent upserts make the re-delivery harmless.
	CursorOverlap time.Duration `envconfig:"RECONCILE_CURSOR_OVERLAP" default:"30s"`

	// SubmittedGrace is how long a submitted order may stay unconfirmed
	// before the engine searches the venue for it by client order ID.
	SubmittedGrace time.Duration `envconfig:"RECONCILE_SUBMITTED_GRACE" default:"2m"`

	// DivergenceTolerance is the quantity delta beyond which local and venue
	// positions are considered divergent.
	DivergenceTolerance string `envconfig:"RECONCILE_DIVERGENCE_TOLERANCE" default:"0.0001"`

	// BatchLimit caps venue orders fetched per cycle.
	BatchLimit int `envconfig:"RECONCILE_BATCH_LIMIT" default:"500"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
