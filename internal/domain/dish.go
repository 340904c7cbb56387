package domain

// Dish: позиция меню. Блюда не удаляются: create → update.
type Dish struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url"`
}

// DishPayload: тело запроса на создание или обновление блюда.
// Поля принимают любой JSON-тип, проверку типа выполняет цепочка.
type DishPayload struct {
	ID          Field `json:"id"`
	Name        Field `json:"name"`
	Description Field `json:"description"`
	Price       Field `json:"price"`
	ImageURL    Field `json:"image_url"`
}
