package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the newest envelope layout this build writes and reads.
const EnvelopeVersion = 1

// ActorRef identifies who triggered the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is stored in outbox_events.payload and published verbatim
// as the message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var (
	ErrEnvelopeVersion = errors.New("unsupported envelope version")
	ErrEnvelopeNoData  = errors.New("envelope carries no data")
)

// ID returns the event id as a uuid.
func (e PayloadEnvelope) ID() (uuid.UUID, error) {
	return uuid.Parse(e.EventID)
}

func sealEnvelope(event DomainEvent, now time.Time) ([]byte, PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = EnvelopeVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = now.UTC()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, PayloadEnvelope{}, err
	}
	return raw, env, nil
}

// DecodeEnvelope parses a stored or published envelope. It rejects layouts
// newer than EnvelopeVersion, ids that are not uuids and empty data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > EnvelopeVersion {
		return env, fmt.Errorf("%w: %d", ErrEnvelopeVersion, env.Version)
	}
	if _, err := env.ID(); err != nil {
		return env, fmt.Errorf("envelope event id: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, ErrEnvelopeNoData
	}
	env.Data = data
	return env, nil
}
