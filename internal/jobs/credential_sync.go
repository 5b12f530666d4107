package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const credentialSyncTimeout = 2 * time.Minute

// CredentialPersister flushes every connected session's device store to the
// credential store and reports how many succeeded.
type CredentialPersister interface {
	PersistAll(ctx context.Context) (int, error)
}

// CredentialSyncJob keeps the durable credential copy close to the live
// device stores, so a crash loses at most one interval of key updates.
type CredentialSyncJob struct {
	persister CredentialPersister
	interval  time.Duration
	done      chan struct{}
}

func NewCredentialSyncJob(persister CredentialPersister, interval time.Duration) *CredentialSyncJob {
	return &CredentialSyncJob{
		persister: persister,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *CredentialSyncJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("credential sync job started")
}

func (j *CredentialSyncJob) Stop() {
	close(j.done)
	log.Info().Msg("credential sync job stopped")
}

func (j *CredentialSyncJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sync()
		}
	}
}

func (j *CredentialSyncJob) sync() {
	ctx, cancel := context.WithTimeout(context.Background(), credentialSyncTimeout)
	defer cancel()

	count, err := j.persister.PersistAll(ctx)
	if err != nil {
		log.Error().Err(err).Int("persisted", count).Msg("credential sync finished with errors")
		return
	}
	if count > 0 {
		log.Debug().Int("persisted", count).Msg("credentials synced")
	}
}
