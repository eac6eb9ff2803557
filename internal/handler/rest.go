package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/model"
	"github.com/vyrodovalexey/storefront/internal/store"
)

// maxBodyBytes caps inbound JSON payloads.
const maxBodyBytes = 1 << 20

// errLoading is returned for writes that arrive before the collections
// have been read from disk.
const errLoading = "service is loading"

// RESTHandler handles REST API requests for items and carts.
type RESTHandler struct {
	items  store.ItemStore
	carts  store.CartStore
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(items store.ItemStore, carts store.CartStore, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		items:  items,
		carts:  carts,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)

	router.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/items", h.CreateItem).Methods(http.MethodPost)
	router.HandleFunc("/items/{id}", h.GetItem).Methods(http.MethodGet)
	router.HandleFunc("/items/{id}", h.UpdateItem).Methods(http.MethodPut)
	router.HandleFunc("/items/{id}", h.DeleteItem).Methods(http.MethodDelete)

	router.HandleFunc("/carts", h.CreateCart).Methods(http.MethodPost)
	router.HandleFunc("/carts/{id}", h.GetCart).Methods(http.MethodGet)
	router.HandleFunc("/carts/{id}/product/{pid}", h.AddCartLine).Methods(http.MethodPost)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// ReadyCheck handles GET /ready requests. The service is ready once both
// collections have been loaded from disk.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	if !h.items.Loaded() || !h.carts.Loaded() {
		writeJSON(w, h.logger, http.StatusServiceUnavailable, ReadyResponse{Status: "loading"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ReadyResponse{Status: "ready"})
}

// ListItems handles GET /items requests.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.List(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "list items")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, items)
}

// GetItem handles GET /items/{id} requests.
func (h *RESTHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "id")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.items.Get(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, err, "get item")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, item)
}

// CreateItem handles POST /items requests.
func (h *RESTHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeItem(w, r)
	if !ok {
		return
	}

	item, err := h.items.Create(r.Context(), input.Fields())
	if err != nil {
		h.handleStoreError(w, err, "create item")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, item)
}

// UpdateItem handles PUT /items/{id} requests.
func (h *RESTHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "id")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	input, ok := h.decodeItem(w, r)
	if !ok {
		return
	}

	item, err := h.items.Update(r.Context(), id, input.Patch())
	if err != nil {
		h.handleStoreError(w, err, "update item")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, item)
}

// DeleteItem handles DELETE /items/{id} requests.
func (h *RESTHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "id")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	removed, err := h.items.Delete(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, err, "delete item")
		return
	}
	if !removed {
		writeError(w, h.logger, http.StatusNotFound, "item not found")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.MessageResponse{Message: "item deleted"})
}

// CreateCart handles POST /carts requests.
func (h *RESTHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Create(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "create cart")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, cart)
}

// GetCart handles GET /carts/{id} requests.
func (h *RESTHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "id")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	cart, err := h.carts.Get(r.Context(), id)
	if err != nil {
		h.handleCartError(w, err, "get cart")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, cart)
}

// AddCartLine handles POST /carts/{id}/product/{pid} requests.
func (h *RESTHandler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	cartID, err := parseID(vars["id"], "id")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	itemID, err := parseID(vars["pid"], "pid")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	cart, err := h.carts.AddLine(r.Context(), cartID, itemID)
	if err != nil {
		h.handleCartError(w, err, "add cart line")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, cart)
}

// decodeItem reads and validates an item payload. It writes the 400
// response itself and reports false when the payload is rejected.
func (h *RESTHandler) decodeItem(w http.ResponseWriter, r *http.Request) (*model.ItemInput, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	input, err := model.DecodeItemInput(body)
	if err == nil {
		err = input.Validate()
	}
	if err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return nil, false
	}

	return input, true
}

// handleStoreError maps item store errors to HTTP responses.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	h.mapError(w, err, operation, "item not found")
}

// handleCartError maps cart store errors to HTTP responses.
func (h *RESTHandler) handleCartError(w http.ResponseWriter, err error, operation string) {
	h.mapError(w, err, operation, "cart not found")
}

func (h *RESTHandler) mapError(w http.ResponseWriter, err error, operation, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, notFound)
	case errors.Is(err, model.ErrValidation):
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotLoaded):
		writeError(w, h.logger, http.StatusServiceUnavailable, errLoading)
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error")
	}
}
