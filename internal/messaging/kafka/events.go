package kafka

// Топики GrubDash.
const (
	// TopicEvents: события жизненного цикла блюд и заказов.
	TopicEvents = "grubdash.events"
	// TopicDeadLetterQueue: события, которые не удалось опубликовать после всех попыток.
	TopicDeadLetterQueue = "grubdash.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOriginalTopic = "x-original-topic"
)
