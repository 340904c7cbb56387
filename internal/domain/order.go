package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан и ещё не готовится. Только в этом статусе его можно удалить.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPreparing: кухня готовит заказ.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusOutForDelivery: курьер в пути.
	OrderStatusOutForDelivery OrderStatus = "out-for-delivery"
	// OrderStatusDelivered: терминальный статус, дальнейшие изменения запрещены.
	OrderStatusDelivered OrderStatus = "delivered"
)

// OrderStatuses перечисляет допустимые статусы в порядке жизненного цикла.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

// IntermediateStatuses: статусы до доставки. Их перечисляет сообщение о неверном статусе.
var IntermediateStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusOutForDelivery,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusOutForDelivery, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// OrderStatusList возвращает статусы через запятую.
func OrderStatusList(statuses ...OrderStatus) string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// LineItem: позиция заказа. DishID и Quantity разобраны из объекта позиции,
// Fields хранит сам объект в том виде, в каком его прислал клиент, и именно он
// попадает в JSON заказа. Позиция без Fields кодируется как {"id", "quantity"}.
type LineItem struct {
	DishID   string
	Quantity int
	Fields   json.RawMessage
}

type lineItemKeys struct {
	ID       Field `json:"id"`
	Quantity Field `json:"quantity"`
}

// ParseLineItem достаёт id и quantity из объекта позиции. ok == false, если raw не объект.
func ParseLineItem(raw json.RawMessage) (id, quantity Field, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Field{}, Field{}, false
	}
	var keys lineItemKeys
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Field{}, Field{}, false
	}
	return keys.ID, keys.Quantity, true
}

// MarshalJSON отдаёт позицию без изменений.
func (l LineItem) MarshalJSON() ([]byte, error) {
	if len(l.Fields) > 0 {
		return l.Fields, nil
	}
	return json.Marshal(struct {
		DishID   string `json:"id"`
		Quantity int    `json:"quantity"`
	}{l.DishID, l.Quantity})
}

// UnmarshalJSON запоминает объект позиции и разбирает из него id и quantity.
func (l *LineItem) UnmarshalJSON(data []byte) error {
	id, quantity, ok := ParseLineItem(data)
	if !ok {
		return errors.New("order line item must be a JSON object")
	}
	n, _ := quantity.Number()
	l.DishID = id.Literal()
	l.Quantity = int(n)
	l.Fields = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// Order агрегирует адрес доставки, контакт, статус и позиции.
type Order struct {
	ID           string      `json:"id"`
	DeliverTo    string      `json:"deliverTo"`
	MobileNumber string      `json:"mobileNumber"`
	Status       OrderStatus `json:"status"`
	Dishes       []LineItem  `json:"dishes"`
}

// Clone возвращает копию заказа, не разделяющую слайс позиций с оригиналом.
func (o Order) Clone() Order {
	if o.Dishes != nil {
		dishes := make([]LineItem, len(o.Dishes))
		copy(dishes, o.Dishes)
		o.Dishes = dishes
	}
	return o
}

// OrderPayload: тело запроса на создание или обновление заказа.
// Поля принимают любой JSON-тип, проверку типа выполняет цепочка.
// Status при создании игнорируется.
type OrderPayload struct {
	ID           Field `json:"id"`
	DeliverTo    Field `json:"deliverTo"`
	MobileNumber Field `json:"mobileNumber"`
	Status       Field `json:"status"`
	Dishes       Field `json:"dishes"`
}
