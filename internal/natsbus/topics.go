package natsbus

import "fmt"

// Pipeline events are published per run so `watch` can follow one run or
// all of them.

func TopicEventsRun(runID string) string {
	return fmt.Sprintf("events.pipeline.%s", runID)
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsPipeline = "events.pipeline.*"
)
