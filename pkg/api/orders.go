package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ingest-pipeline/pkg/order"
)

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, issues := s.pagination(r)
	if len(issues) > 0 {
		validationFailed(w, issues)
		return
	}

	p, cached, err := s.Orders.GetPage(r.Context(), page, limit)
	if err != nil {
		s.Log.Error("failed to list orders", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, pageEnvelope{
		Success: true, Data: p.Data, Page: p.Page, Limit: p.Limit, Total: p.Total, Cached: cached,
	})
}

func (s *Server) searchOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	page, limit, issues := s.pagination(r)
	if q == "" {
		issues = append(issues, Issue{Field: "q", Message: "Search query cannot be empty"})
	}
	if len(issues) > 0 {
		validationFailed(w, issues)
		return
	}

	p, cached, err := s.Orders.GetSearch(r.Context(), q, page, limit)
	if err != nil {
		s.Log.Error("failed to search orders", "query", q, "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, pageEnvelope{
		Success: true, Data: p.Data, Page: p.Page, Limit: p.Limit, Total: p.Total, Cached: cached,
	})
}

func (s *Server) orderByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		validationFailed(w, []Issue{{Field: "id", Message: "Invalid order ID format"}})
		return
	}

	o, cached, err := s.Orders.GetByID(r.Context(), id)
	if err != nil {
		s.Log.Error("failed to fetch order", "id", id, "error", err)
		internalError(w)
		return
	}
	if o == nil {
		writeJSON(w, http.StatusNotFound, envelope{
			Success: false, Message: fmt.Sprintf("Order not found with ID: %s", id),
		})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool         `json:"success"`
		Data    *order.Order `json:"data"`
		Cached  bool         `json:"cached"`
	}{true, o, cached})
}

func (s *Server) orderStats(w http.ResponseWriter, r *http.Request) {
	stats, cached, err := s.Orders.GetStats(r.Context())
	if err != nil {
		s.Log.Error("failed to fetch order stats", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool         `json:"success"`
		Data    *order.Stats `json:"data"`
		Cached  bool         `json:"cached"`
	}{true, stats, cached})
}

// createOrders accepts one order object or an array of them.
func (s *Server) createOrders(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		internalError(w)
		return
	}

	var inputs []order.CreateInput
	if isJSONArray(body) {
		if err := json.Unmarshal(body, &inputs); err != nil {
			validationFailed(w, []Issue{{Field: "body", Message: "invalid JSON"}})
			return
		}
	} else {
		var single order.CreateInput
		if err := json.Unmarshal(body, &single); err != nil {
			validationFailed(w, []Issue{{Field: "body", Message: "invalid JSON"}})
			return
		}
		inputs = []order.CreateInput{single}
	}

	var issues []Issue
	for i, in := range inputs {
		issues = append(issues, validateOrder(in, fmt.Sprintf("[%d].", i))...)
	}
	if len(issues) > 0 {
		validationFailed(w, issues)
		return
	}

	saved, err := s.OrderStore.SaveAll(r.Context(), inputs)
	if err != nil {
		s.Log.Error("failed to create orders", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true, Message: "Order(s) created successfully", Data: saved,
	})
}

func validateOrder(in order.CreateInput, fieldPrefix string) []Issue {
	var issues []Issue
	if in.UserID == "" {
		issues = append(issues, Issue{Field: fieldPrefix + "userId", Message: "userId is required"})
	}
	if in.ProductName == "" {
		issues = append(issues, Issue{Field: fieldPrefix + "productName", Message: "productName is required"})
	}
	if in.TotalAmount == nil || *in.TotalAmount <= 0 {
		issues = append(issues, Issue{Field: fieldPrefix + "totalAmount", Message: "totalAmount must be positive"})
	}
	switch in.Status {
	case "", order.StatusPending, order.StatusCompleted, order.StatusCancelled:
	default:
		issues = append(issues, Issue{Field: fieldPrefix + "status", Message: "invalid status"})
	}
	return issues
}

// pagination parses page/limit and clamps limit to the maximum page size.
func (s *Server) pagination(r *http.Request) (page, limit int, issues []Issue) {
	page, pageIssue := positiveIntQuery(r, "page", 1)
	if pageIssue != nil {
		issues = append(issues, *pageIssue)
	}
	limit, limitIssue := positiveIntQuery(r, "limit", 100)
	if limitIssue != nil {
		issues = append(issues, *limitIssue)
	}
	if limit > s.PageSize {
		limit = s.PageSize
	}
	return page, limit, issues
}

func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
