package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"ingest-pipeline/pkg/consumer"
	"ingest-pipeline/pkg/observability"
	"ingest-pipeline/pkg/record"
)

// ingest accepts one record object or {batch: [...]}. A 201 means "accepted
// for processing", never "processed".
func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		record.IngestItem
		Batch []record.IngestItem `json:"batch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		validationFailed(w, []Issue{{Field: "body", Message: "invalid JSON"}})
		return
	}

	if len(body.Batch) > 0 {
		s.ingestBatch(w, r, body.Batch)
		return
	}

	if issues := validateItem(body.IngestItem, ""); len(issues) > 0 {
		validationFailed(w, issues)
		return
	}

	rec := record.New(body.IngestItem)
	if err := s.Queue.Enqueue(r.Context(), rec); err != nil {
		s.Log.Error("failed to enqueue record", "record_id", rec.ID, "error", err)
		internalError(w)
		return
	}

	observability.RecordsIngested.WithLabelValues("single").Inc()
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Record queued successfully",
		Data:    map[string]string{"id": rec.ID},
	})
}

// ingestBatch tolerates malformed elements: valid records are still enqueued
// and the response reports both accepted ids and per-element issues.
func (s *Server) ingestBatch(w http.ResponseWriter, r *http.Request, items []record.IngestItem) {
	var issues []Issue
	var records []record.Record
	for i, item := range items {
		if itemIssues := validateItem(item, fmt.Sprintf("batch[%d].", i)); len(itemIssues) > 0 {
			issues = append(issues, itemIssues...)
			continue
		}
		records = append(records, record.New(item))
	}

	if len(records) == 0 {
		validationFailed(w, issues)
		return
	}

	enqueueErrs := s.Queue.EnqueueBatch(r.Context(), records)
	ids := []string{}
	for i, rec := range records {
		if enqueueErrs[i] != nil {
			continue
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) == 0 {
		internalError(w)
		return
	}

	observability.RecordsIngested.WithLabelValues("batch").Add(float64(len(ids)))
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Batch records queued successfully",
		Data:    ids,
		Errors:  issues,
	})
}

func validateItem(item record.IngestItem, fieldPrefix string) []Issue {
	var issues []Issue
	if item.Source == "" {
		issues = append(issues, Issue{Field: fieldPrefix + "source", Message: "Source is required"})
	}
	if item.Value == nil {
		issues = append(issues, Issue{Field: fieldPrefix + "value", Message: "Value is required"})
	}
	return issues
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, issue := positiveIntQuery(r, "limit", 100)
	if issue != nil {
		validationFailed(w, []Issue{*issue})
		return
	}

	records, err := s.Records.History(r.Context(), limit)
	if err != nil {
		s.Log.Error("failed to fetch history", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: records})
}

// dataStats reads the aggregate counters maintained by the workers.
func (s *Server) dataStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawCount, countExists, err := s.Keys.Get(ctx, consumer.CountKey)
	if err != nil {
		internalError(w)
		return
	}
	rawSum, sumExists, err := s.Keys.Get(ctx, consumer.SumKey)
	if err != nil {
		internalError(w)
		return
	}

	// A missing counter means nothing has been processed yet and reads as
	// zero; a present but unparsable one is corruption and gets logged.
	var count int64
	if countExists {
		if count, err = strconv.ParseInt(rawCount, 10, 64); err != nil {
			s.Log.Error("unparsable ingest counter", "key", consumer.CountKey, "value", rawCount, "error", err)
		}
	}
	var sum float64
	if sumExists {
		if sum, err = strconv.ParseFloat(rawSum, 64); err != nil {
			s.Log.Error("unparsable ingest counter", "key", consumer.SumKey, "value", rawSum, "error", err)
		}
	}
	avg := 0.0
	if count > 0 {
		avg = sum / float64(count)
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"count": count,
		"sum":   sum,
		"avg":   avg,
	}})
}

func positiveIntQuery(r *http.Request, name string, def int) (int, *Issue) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &Issue{Field: name, Message: name + " must be a positive integer"}
	}
	return n, nil
}
