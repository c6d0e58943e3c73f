package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/paysettle-backend/internal/testdb"
	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

func TestLockNamePerEnvironment(t *testing.T) {
	require.Equal(t, "cron-worker:local", lockName(""))
	require.Equal(t, "cron-worker:prod", lockName("prod"))
}

func TestRetentionJobsAreDistinct(t *testing.T) {
	jobs, err := retentionJobs(config.CronConfig{}, logger.New(logger.Options{}), db.NewFromConn(testdb.Open(t)))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "outbox-retention", jobs[0].Name())
	require.Equal(t, "webhook-event-retention", jobs[1].Name())
}
