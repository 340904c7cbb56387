package outbox

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

// Emitter ставит доменные события в outbox. Нулевой Emitter (или без репозитория)
// ничего не делает: так выглядит конфигурация без брокера.
type Emitter struct {
	repo   domain.OutboxRepository
	logger *log.Entry
}

// NewEmitter создаёт Emitter поверх outbox-репозитория; repo может быть nil.
func NewEmitter(repo domain.OutboxRepository, logger *log.Entry) *Emitter {
	if logger == nil {
		logger = log.WithField("component", "outbox-emitter")
	}
	return &Emitter{repo: repo, logger: logger}
}

// Enabled сообщает, публикуются ли события.
func (e *Emitter) Enabled() bool {
	return e != nil && e.repo != nil
}

// Emit сериализует запись и ставит событие в очередь.
func (e *Emitter) Emit(aggregateType, aggregateID, eventType string, record any) error {
	if !e.Enabled() {
		return nil
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	msg, err := e.repo.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}

	e.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   eventType,
		"aggregate_id": aggregateID,
	}).Debug("event enqueued")
	return nil
}
