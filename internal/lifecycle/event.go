package lifecycle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind enumerates every webhook notification this service understands.
// Dispatch always switches over the full set so a newly added kind that is not
// handled shows up as a test failure instead of a silent no-op.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindStreamStart
	KindStreamEnd
	KindRecordingStart
	KindRecordingEnd
)

func (k EventKind) String() string {
	switch k {
	case KindStreamStart:
		return "stream_start"
	case KindStreamEnd:
		return "stream_end"
	case KindRecordingStart:
		return "recording_start"
	case KindRecordingEnd:
		return "recording_end"
	default:
		return "unknown"
	}
}

func kindFromEventName(name string) EventKind {
	switch strings.TrimSpace(name) {
	case "Stream Start":
		return KindStreamStart
	case "Stream End":
		return KindStreamEnd
	default:
		return KindUnknown
	}
}

func kindFromRecordingStatus(status string) EventKind {
	switch strings.TrimSpace(status) {
	case "Recording Start":
		return KindRecordingStart
	case "Recording End":
		return KindRecordingEnd
	default:
		return KindUnknown
	}
}

// LifecycleEvent is a decoded stream state change notification.
type LifecycleEvent struct {
	Kind              EventKind
	ChannelReference  string
	ProviderSessionID string
	OccurredAt        time.Time
}

// RecordingEvent is a decoded recording state change notification.
type RecordingEvent struct {
	Kind              EventKind
	ProviderSessionID string
	Bucket            string
	Region            string
	KeyPrefix         string
}

type eventEnvelope struct {
	DetailType string      `json:"detail-type"`
	Region     string      `json:"region"`
	Resources  []string    `json:"resources"`
	Time       time.Time   `json:"time"`
	Detail     eventDetail `json:"detail"`
}

type eventDetail struct {
	EventName            string `json:"event_name"`
	ChannelARN           string `json:"channel_arn"`
	StreamID             string `json:"stream_id"`
	RecordingStatus      string `json:"recording_status"`
	RecordingS3Bucket    string `json:"recording_s3_bucket_name"`
	RecordingS3KeyPrefix string `json:"recording_s3_key_prefix"`
}

// ParseLifecycleEvent decodes a stream lifecycle notification. Unknown event
// names decode successfully with KindUnknown so the caller can acknowledge
// them without acting.
func ParseLifecycleEvent(body []byte) (LifecycleEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return LifecycleEvent{}, fmt.Errorf("decode lifecycle event: %w", err)
	}

	event := LifecycleEvent{
		Kind:              kindFromEventName(envelope.Detail.EventName),
		ChannelReference:  strings.TrimSpace(envelope.Detail.ChannelARN),
		ProviderSessionID: strings.TrimSpace(envelope.Detail.StreamID),
		OccurredAt:        envelope.Time,
	}
	// Notifications that omit the channel field carry the channel ARN as the
	// first envelope resource.
	if event.ChannelReference == "" && len(envelope.Resources) > 0 {
		event.ChannelReference = strings.TrimSpace(envelope.Resources[0])
	}

	if event.Kind == KindUnknown {
		return event, nil
	}
	if event.ChannelReference == "" {
		return LifecycleEvent{}, fmt.Errorf("lifecycle event missing channel reference")
	}
	if event.ProviderSessionID == "" {
		return LifecycleEvent{}, fmt.Errorf("lifecycle event missing stream_id")
	}
	return event, nil
}

// ParseRecordingEvent decodes a recording notification. Unknown recording
// statuses decode successfully with KindUnknown.
func ParseRecordingEvent(body []byte) (RecordingEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return RecordingEvent{}, fmt.Errorf("decode recording event: %w", err)
	}

	event := RecordingEvent{
		Kind:              kindFromRecordingStatus(envelope.Detail.RecordingStatus),
		ProviderSessionID: strings.TrimSpace(envelope.Detail.StreamID),
		Bucket:            strings.TrimSpace(envelope.Detail.RecordingS3Bucket),
		Region:            strings.TrimSpace(envelope.Region),
		KeyPrefix:         strings.TrimSpace(envelope.Detail.RecordingS3KeyPrefix),
	}

	if event.Kind == KindUnknown {
		return event, nil
	}
	if event.ProviderSessionID == "" {
		return RecordingEvent{}, fmt.Errorf("recording event missing stream_id")
	}
	if event.Bucket == "" || event.Region == "" || event.KeyPrefix == "" {
		return RecordingEvent{}, fmt.Errorf("recording event missing media location fields")
	}
	return event, nil
}
