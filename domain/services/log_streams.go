package services

import log "github.com/sirupsen/logrus"

// Dedicated log streams. Operators route them by the "stream" field.
var (
	failedBetLog   = log.WithField("stream", "failed_bets")
	failedJoinLog  = log.WithField("stream", "failed_join_room")
	failedExitLog  = log.WithField("stream", "failed_exit_room")
	settlementLog  = log.WithField("stream", "settlement")
	creditQueueLog = log.WithField("stream", "credit_queue")
)
