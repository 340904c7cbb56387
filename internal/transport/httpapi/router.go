// Package httpapi публикует сервисы блюд и заказов как REST API поверх gorilla/mux.
package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/metrics"
)

// DishService: операции над блюдами, которые нужны транспорту.
type DishService interface {
	List(ctx context.Context) ([]domain.Dish, error)
	Get(ctx context.Context, id string) (domain.Dish, error)
	Create(ctx context.Context, payload domain.DishPayload) (domain.Dish, error)
	Update(ctx context.Context, id string, payload domain.DishPayload) (domain.Dish, error)
}

// OrderService: операции над заказами, которые нужны транспорту.
type OrderService interface {
	List(ctx context.Context) ([]domain.Order, error)
	Get(ctx context.Context, id string) (domain.Order, error)
	Create(ctx context.Context, payload domain.OrderPayload) (domain.Order, error)
	Update(ctx context.Context, id string, payload domain.OrderPayload) (domain.Order, error)
	Delete(ctx context.Context, id string) error
}

// Handler обслуживает REST-маршруты /dishes и /orders.
type Handler struct {
	dishes  DishService
	orders  OrderService
	metrics *metrics.APIMetrics
	logger  *log.Entry
	router  *mux.Router
	chain   http.Handler
}

// NewHandler собирает маршрутизатор. apiMetrics может быть nil.
func NewHandler(dishes DishService, orders OrderService, apiMetrics *metrics.APIMetrics, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	h := &Handler{
		dishes:  dishes,
		orders:  orders,
		metrics: apiMetrics,
		logger:  logger,
	}

	r := mux.NewRouter()
	r.StrictSlash(false)

	r.HandleFunc("/dishes", h.listDishes).Methods(http.MethodGet)
	r.HandleFunc("/dishes", h.createDish).Methods(http.MethodPost)
	r.HandleFunc("/dishes/{dishId}", h.getDish).Methods(http.MethodGet)
	r.HandleFunc("/dishes/{dishId}", h.updateDish).Methods(http.MethodPut)

	r.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/{orderId}", h.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{orderId}", h.updateOrder).Methods(http.MethodPut)
	r.HandleFunc("/orders/{orderId}", h.deleteOrder).Methods(http.MethodDelete)

	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(pathNotFound)

	h.router = r
	h.chain = h.instrument(r)
	return h
}

// ServeHTTP пропускает запрос через журналирование и метрики, затем через маршрутизатор.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("%s not allowed for %s", r.Method, r.URL.Path))
}

func pathNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, fmt.Sprintf("Path not found: %s", r.URL.Path))
}

// routeTemplate возвращает шаблон маршрута для меток метрик, чтобы id не раздували кардинальность.
func (h *Handler) routeTemplate(r *http.Request) string {
	var match mux.RouteMatch
	if h.router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
