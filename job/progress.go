package job

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	Logger "github.com/openflock/flockbase/utils/log"
)

// ProgressTopic is the event bus topic every job publishes its lifecycle
// events on. The daemon's registry subscribes to it; CLI runs carry no bus
// and publish nothing.
const ProgressTopic = "job.progress"

// ProgressEvent is one job lifecycle update: a state transition, or a
// finished target with its tallies.
type ProgressEvent struct {
	JobId  string `json:"job_id"`
	Kind   string `json:"kind"`
	State  State  `json:"state"`
	Target string `json:"target,omitempty"`

	// Outcome is set on per-target events only.
	Outcome *TargetOutcome `json:"outcome,omitempty"`
	// Error is set when State is failed.
	Error string `json:"error,omitempty"`

	At time.Time `json:"at"`
}

// publishProgress sends one event to the bus. A nil bus is a no-op so jobs
// never branch on whether a daemon is listening. Publishing is best effort:
// a marshal or publish failure is logged and swallowed, progress reporting
// must never fail a job.
func publishProgress(bus *gochannel.GoChannel, event *ProgressEvent) {
	if bus == nil {
		return
	}
	event.At = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		Logger.Log.Warnln("cannot marshal progress event:", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := bus.Publish(ProgressTopic, msg); err != nil {
		Logger.Log.Warnln("cannot publish progress event:", err)
	}
}
