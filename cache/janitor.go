package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunJanitor purges expired entries every interval until the context is done.
// Errors are logged and the loop continues.
func RunJanitor(ctx context.Context, sweeper Sweeper, interval time.Duration) {
	log.Info().Msgf("Starting cache janitor with interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Stopping cache janitor")
			return
		case <-ticker.C:
			n, err := sweeper.PurgeExpired()
			if err != nil {
				log.Error().Err(err).Msg("Could not purge expired entries")
				continue
			}
			if n > 0 {
				log.Debug().Int("purged", n).Msg("Purged expired cache entries")
			} else {
				log.Trace().Msg("No expired entries")
			}
		}
	}
}
