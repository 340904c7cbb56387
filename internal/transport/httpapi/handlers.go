package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

const (
	resourceDish  = "dish"
	resourceOrder = "order"
)

func (h *Handler) recordMutation(resource, operation string) {
	if h.metrics != nil {
		h.metrics.RecordMutation(resource, operation)
	}
}

func (h *Handler) listDishes(w http.ResponseWriter, r *http.Request) {
	dishes, err := h.dishes.List(r.Context())
	if err != nil {
		h.fail(w, r, resourceDish, "list", err)
		return
	}
	writeData(w, http.StatusOK, dishes)
}

func (h *Handler) createDish(w http.ResponseWriter, r *http.Request) {
	payload, err := decode[domain.DishPayload](r)
	if err != nil {
		h.fail(w, r, resourceDish, "create", err)
		return
	}

	dish, err := h.dishes.Create(r.Context(), payload)
	if err != nil {
		h.fail(w, r, resourceDish, "create", err)
		return
	}
	h.recordMutation(resourceDish, "create")
	writeData(w, http.StatusCreated, dish)
}

func (h *Handler) getDish(w http.ResponseWriter, r *http.Request) {
	dish, err := h.dishes.Get(r.Context(), mux.Vars(r)["dishId"])
	if err != nil {
		h.fail(w, r, resourceDish, "read", err)
		return
	}
	writeData(w, http.StatusOK, dish)
}

func (h *Handler) updateDish(w http.ResponseWriter, r *http.Request) {
	payload, err := decode[domain.DishPayload](r)
	if err != nil {
		h.fail(w, r, resourceDish, "update", err)
		return
	}

	dish, err := h.dishes.Update(r.Context(), mux.Vars(r)["dishId"], payload)
	if err != nil {
		h.fail(w, r, resourceDish, "update", err)
		return
	}
	h.recordMutation(resourceDish, "update")
	writeData(w, http.StatusOK, dish)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.fail(w, r, resourceOrder, "list", err)
		return
	}
	writeData(w, http.StatusOK, orders)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	payload, err := decode[domain.OrderPayload](r)
	if err != nil {
		h.fail(w, r, resourceOrder, "create", err)
		return
	}

	order, err := h.orders.Create(r.Context(), payload)
	if err != nil {
		h.fail(w, r, resourceOrder, "create", err)
		return
	}
	h.recordMutation(resourceOrder, "create")
	writeData(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		h.fail(w, r, resourceOrder, "read", err)
		return
	}
	writeData(w, http.StatusOK, order)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	payload, err := decode[domain.OrderPayload](r)
	if err != nil {
		h.fail(w, r, resourceOrder, "update", err)
		return
	}

	order, err := h.orders.Update(r.Context(), mux.Vars(r)["orderId"], payload)
	if err != nil {
		h.fail(w, r, resourceOrder, "update", err)
		return
	}
	h.recordMutation(resourceOrder, "update")
	writeData(w, http.StatusOK, order)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), mux.Vars(r)["orderId"]); err != nil {
		h.fail(w, r, resourceOrder, "delete", err)
		return
	}
	h.recordMutation(resourceOrder, "delete")
	w.WriteHeader(http.StatusNoContent)
}
