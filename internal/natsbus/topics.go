package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicTeamEvents(teamID string) string {
	return fmt.Sprintf("events.team.%s", teamID)
}

func TopicRecoveryEvents(teamID string) string {
	return fmt.Sprintf("events.recovery.%s", teamID)
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsRecovery = "events.recovery.*"
)
