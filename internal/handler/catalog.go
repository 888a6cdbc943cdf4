package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mmeshcher/storeback-system/internal/model"
)

type productPayload struct {
	Code       string `json:"code"`
	SKU        string `json:"sku,omitempty"`
	Name       string `json:"name"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

type productResponse struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	SKU        string `json:"sku,omitempty"`
	Name       string `json:"name"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

func toProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Code:       p.Code,
		SKU:        p.SKU,
		Name:       p.Name,
		CategoryID: p.CategoryID,
	}
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var payload productPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateProduct(r.Context(), model.Product{
		Code:       payload.Code,
		SKU:        payload.SKU,
		Name:       payload.Name,
		CategoryID: payload.CategoryID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toProductResponse(*created))
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProductResponse(*p))
}

// ListProducts возвращает все товары каталога.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type categoryPayload struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type categoryResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Slug     string `json:"slug"`
}

// CreateCategory добавляет категорию каталога.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var payload categoryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateCategory(r.Context(), model.Category{
		Name:     payload.Name,
		ParentID: payload.ParentID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, categoryResponse{
		ID:       created.ID,
		Name:     created.Name,
		ParentID: created.ParentID,
		Slug:     created.Slug,
	})
}

// ListCategories возвращает все категории каталога.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, categoryResponse{
			ID:       c.ID,
			Name:     c.Name,
			ParentID: c.ParentID,
			Slug:     c.Slug,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type supplierPayload struct {
	ID            int64  `json:"id,omitempty"`
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// CreateSupplier добавляет поставщика.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var payload supplierPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateSupplier(r.Context(), model.Supplier{
		Name:          payload.Name,
		ContactPerson: payload.ContactPerson,
		Phone:         payload.Phone,
		Notes:         payload.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, supplierPayload{
		ID:            created.ID,
		Name:          created.Name,
		ContactPerson: created.ContactPerson,
		Phone:         created.Phone,
		Notes:         created.Notes,
	})
}

// ListSuppliers возвращает всех поставщиков.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]supplierPayload, 0, len(suppliers))
	for _, s := range suppliers {
		resp = append(resp, supplierPayload{
			ID:            s.ID,
			Name:          s.Name,
			ContactPerson: s.ContactPerson,
			Phone:         s.Phone,
			Notes:         s.Notes,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type customerPayload struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// CreateCustomer добавляет клиента.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var payload customerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateCustomer(r.Context(), model.Customer{
		Name:  payload.Name,
		Phone: payload.Phone,
		Email: payload.Email,
		Notes: payload.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, customerPayload{
		ID:    created.ID,
		Name:  created.Name,
		Phone: created.Phone,
		Email: created.Email,
		Notes: created.Notes,
	})
}

// ListCustomers возвращает всех клиентов.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]customerPayload, 0, len(customers))
	for _, c := range customers {
		resp = append(resp, customerPayload{
			ID:    c.ID,
			Name:  c.Name,
			Phone: c.Phone,
			Email: c.Email,
			Notes: c.Notes,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
