package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finum/finum/internal/analytics"
	"github.com/finum/finum/internal/api/middleware"
	"github.com/finum/finum/internal/archive"
	"github.com/finum/finum/internal/domain"
	"github.com/finum/finum/internal/importer"
	"github.com/finum/finum/internal/jobs"
	"github.com/finum/finum/internal/ledger"
	"github.com/finum/finum/internal/patterns"
)

const dateFormat = "2006-01-02"

// Store is the storage surface the handlers read and write directly.
// Satisfied by the BigQuery repository.
type Store interface {
	ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]*domain.Transaction, error)

	InsertBucket(ctx context.Context, b *domain.Bucket) error
	GetBucket(ctx context.Context, id string) (*domain.Bucket, error)
	ListBuckets(ctx context.Context, userID string) ([]*domain.Bucket, error)
	UpdateBucketAllocation(ctx context.Context, b *domain.Bucket) error

	InsertRule(ctx context.Context, rule *domain.Rule) error
	ListRules(ctx context.Context, userID string) ([]*domain.Rule, error)
	DeleteRule(ctx context.Context, id string) error

	GetPattern(ctx context.Context, id string) (*domain.Pattern, error)
	UpdatePatternStatus(ctx context.Context, id string, status domain.PatternStatus) error
}

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	store         Store
	importer      *importer.Service
	ledger        *ledger.Service
	archiveBucket string
	log           zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
// archiveBucket may be empty to disable raw import archiving.
func NewTransactionsHandler(store Store, imp *importer.Service, led *ledger.Service, archiveBucket string, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store:         store,
		importer:      imp,
		ledger:        led,
		archiveBucket: archiveBucket,
		log:           log,
	}
}

type importRowRequest struct {
	Date     string          `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Merchant string          `json:"merchant"`
	Category string          `json:"category,omitempty"`
}

type importRequest struct {
	Filename string             `json:"filename,omitempty"`
	Rows     []importRowRequest `json:"rows"`
}

// Import handles POST /api/transactions/import
func (h *TransactionsHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "rows is required")
		return
	}

	rows := make([]importer.Row, 0, len(req.Rows))
	for i, raw := range req.Rows {
		date, err := time.Parse(dateFormat, raw.Date)
		if err != nil {
			// Leave date zero; the importer reports it as a row error
			// so the rest of the batch still lands.
			h.log.Debug().Int("index", i).Str("date", raw.Date).Msg("Unparseable row date")
		}
		rows = append(rows, importer.Row{
			Date:     date,
			Amount:   raw.Amount,
			Currency: raw.Currency,
			Merchant: raw.Merchant,
			Category: raw.Category,
		})
	}

	if h.archiveBucket != "" {
		// Best effort. A failed archive never blocks the import.
		if raw, err := json.Marshal(req); err == nil {
			objectName := archive.ObjectName(userID, req.Filename, time.Now().UTC())
			if uri, err := archive.StoreImport(ctx, h.archiveBucket, objectName, raw); err != nil {
				h.log.Warn().Err(err).Msg("Failed to archive import payload")
			} else {
				h.log.Info().Str("gcs_uri", uri).Msg("Archived import payload")
			}
		}
	}

	result, err := h.importer.Import(ctx, userID, rows)
	if err != nil {
		h.log.Error().Err(err).Msg("Import failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Import failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// List handles GET /api/transactions
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	query := r.URL.Query()
	from := time.Now().AddDate(-1, 0, 0)
	to := time.Now()
	var err error

	if s := query.Get("start_date"); s != "" {
		from, err = time.Parse(dateFormat, s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
	}
	if s := query.Get("end_date"); s != "" {
		to, err = time.Parse(dateFormat, s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
	}

	txs, err := h.store.ListTransactionsBetween(ctx, userID, from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if txs == nil {
		txs = []*domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, txs)
}

// Link handles POST /api/transactions/{id}/link
func (h *TransactionsHandler) Link(w http.ResponseWriter, r *http.Request, txID string) {
	ctx := r.Context()

	var req struct {
		BucketID *string `json:"bucket_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.ledger.Link(ctx, txID, req.BucketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction or bucket not found")
			return
		}
		h.log.Error().Err(err).Str("transaction_id", txID).Msg("Failed to link transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to link transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// BucketsHandler handles budget bucket endpoints.
type BucketsHandler struct {
	store  Store
	ledger *ledger.Service
	log    zerolog.Logger
}

// NewBucketsHandler creates a new buckets handler.
func NewBucketsHandler(store Store, led *ledger.Service, log zerolog.Logger) *BucketsHandler {
	return &BucketsHandler{store: store, ledger: led, log: log}
}

type bucketResponse struct {
	*domain.Bucket
	Remaining decimal.Decimal `json:"remaining"`
}

// List handles GET /api/buckets
func (h *BucketsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	buckets, err := h.store.ListBuckets(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list buckets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list buckets")
		return
	}

	out := make([]bucketResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketResponse{Bucket: b, Remaining: b.Remaining()})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"buckets": out,
		"count":   len(out),
	})
}

// Create handles POST /api/buckets
func (h *BucketsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		Name      string          `json:"name"`
		Allocated decimal.Decimal `json:"allocated"`
		Period    string          `json:"period"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	period := domain.BucketPeriod(req.Period)
	if period != domain.PeriodMonthly && period != domain.PeriodAnnual {
		middleware.WriteError(w, http.StatusBadRequest, "period must be monthly or annual")
		return
	}

	bucket := &domain.Bucket{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      req.Name,
		Allocated: req.Allocated,
		Spent:     decimal.Zero,
		Period:    period,
		CreatedTS: time.Now().UTC(),
	}

	if err := h.store.InsertBucket(ctx, bucket); err != nil {
		h.log.Error().Err(err).Msg("Failed to create bucket")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create bucket")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, bucket)
}

// Update handles PUT /api/buckets/{id}
func (h *BucketsHandler) Update(w http.ResponseWriter, r *http.Request, bucketID string) {
	ctx := r.Context()

	bucket, err := h.store.GetBucket(ctx, bucketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Bucket not found")
			return
		}
		h.log.Error().Err(err).Str("bucket_id", bucketID).Msg("Failed to get bucket")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get bucket")
		return
	}

	var req struct {
		Name      *string          `json:"name"`
		Allocated *decimal.Decimal `json:"allocated"`
		Period    *string          `json:"period"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != nil {
		bucket.Name = *req.Name
	}
	if req.Allocated != nil {
		bucket.Allocated = *req.Allocated
	}
	if req.Period != nil {
		period := domain.BucketPeriod(*req.Period)
		if period != domain.PeriodMonthly && period != domain.PeriodAnnual {
			middleware.WriteError(w, http.StatusBadRequest, "period must be monthly or annual")
			return
		}
		bucket.Period = period
	}

	if err := h.store.UpdateBucketAllocation(ctx, bucket); err != nil {
		h.log.Error().Err(err).Str("bucket_id", bucketID).Msg("Failed to update bucket")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update bucket")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, bucket)
}

// Reconcile handles POST /api/buckets/reconcile
func (h *BucketsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	drifts, err := h.ledger.Reconcile(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Reconcile failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Reconcile failed")
		return
	}

	type driftResponse struct {
		BucketID string          `json:"bucket_id"`
		Cached   decimal.Decimal `json:"cached"`
		Actual   decimal.Decimal `json:"actual"`
	}
	out := make([]driftResponse, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, driftResponse{BucketID: d.BucketID, Cached: d.Cached, Actual: d.Actual})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"drifts": out,
		"count":  len(out),
	})
}

// RulesHandler handles assignment rule endpoints.
type RulesHandler struct {
	store Store
	log   zerolog.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(store Store, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{store: store, log: log}
}

// List handles GET /api/rules
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	ruleSet, err := h.store.ListRules(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": ruleSet,
		"count": len(ruleSet),
	})
}

type createRuleRequest struct {
	RuleType         string           `json:"rule_type"`
	Merchant         string           `json:"merchant,omitempty"`
	Category         string           `json:"category,omitempty"`
	MinAmount        *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount        *decimal.Decimal `json:"max_amount,omitempty"`
	MerchantContains string           `json:"merchant_contains,omitempty"`
	Priority         int              `json:"priority"`
	BucketID         string           `json:"bucket_id"`
}

func (req *createRuleRequest) condition() (domain.Condition, string) {
	switch domain.RuleType(req.RuleType) {
	case domain.RuleTypeMerchant:
		if req.Merchant == "" {
			return nil, "merchant is required for merchant rules"
		}
		return domain.MerchantCondition{Merchant: req.Merchant}, ""
	case domain.RuleTypeCategory:
		if req.Category == "" {
			return nil, "category is required for category rules"
		}
		return domain.CategoryCondition{Category: req.Category}, ""
	case domain.RuleTypeAmountRange:
		if req.MinAmount == nil && req.MaxAmount == nil {
			return nil, "min_amount or max_amount is required for amount_range rules"
		}
		return domain.AmountRangeCondition{Min: req.MinAmount, Max: req.MaxAmount}, ""
	case domain.RuleTypeMerchantCategory:
		if req.MerchantContains == "" || req.Category == "" {
			return nil, "merchant_contains and category are required for merchant_category rules"
		}
		return domain.MerchantCategoryCondition{
			MerchantContains: req.MerchantContains,
			Category:         req.Category,
		}, ""
	default:
		return nil, "unknown rule_type"
	}
}

// Create handles POST /api/rules
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BucketID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "bucket_id is required")
		return
	}

	cond, problem := req.condition()
	if problem != "" {
		middleware.WriteError(w, http.StatusBadRequest, problem)
		return
	}

	// The target bucket must exist; a rule pointing nowhere would
	// silently swallow transactions.
	if _, err := h.store.GetBucket(ctx, req.BucketID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusBadRequest, "bucket_id does not exist")
			return
		}
		h.log.Error().Err(err).Msg("Failed to check bucket")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	rule := &domain.Rule{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      domain.RuleType(req.RuleType),
		Cond:      cond,
		Priority:  req.Priority,
		BucketID:  req.BucketID,
		CreatedTS: time.Now().UTC(),
	}

	if err := h.store.InsertRule(ctx, rule); err != nil {
		h.log.Error().Err(err).Msg("Failed to create rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, rule)
}

// Delete handles DELETE /api/rules/{id}
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request, ruleID string) {
	ctx := r.Context()

	if err := h.store.DeleteRule(ctx, ruleID); err != nil {
		h.log.Error().Err(err).Str("rule_id", ruleID).Msg("Failed to delete rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PatternsHandler handles recurring pattern endpoints.
type PatternsHandler struct {
	store     Store
	svc       *patterns.Service
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewPatternsHandler creates a new patterns handler.
func NewPatternsHandler(store Store, svc *patterns.Service, publisher jobs.Publisher, log zerolog.Logger) *PatternsHandler {
	return &PatternsHandler{store: store, svc: svc, publisher: publisher, log: log}
}

// Get handles GET /api/patterns
func (h *PatternsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	lookback := 0
	if s := r.URL.Query().Get("lookback_months"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid lookback_months")
			return
		}
		lookback = v
	}

	result, err := h.svc.GetPatterns(ctx, userID, lookback)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get patterns")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get patterns")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Refresh handles POST /api/patterns/refresh
// Detection runs in the background; the response carries the job ID.
func (h *PatternsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		LookbackMonths int `json:"lookback_months"`
	}
	if r.Body != nil {
		// Empty body is fine; defaults apply.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	job := &jobs.UserJob{
		Type:           jobs.JobTypeRefreshPatterns,
		UserID:         userID,
		LookbackMonths: req.LookbackMonths,
	}

	if err := h.publisher.Publish(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue pattern refresh")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue pattern refresh")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", userID).Msg("Pattern refresh enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// UpdateStatus handles POST /api/patterns/{id}/status
func (h *PatternsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, patternID string) {
	ctx := r.Context()

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status := domain.PatternStatus(req.Status)
	switch status {
	case domain.PatternStatusDetected, domain.PatternStatusBudgeted, domain.PatternStatusIgnored:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "status must be detected, budgeted or ignored")
		return
	}

	if _, err := h.store.GetPattern(ctx, patternID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Pattern not found")
			return
		}
		h.log.Error().Err(err).Str("pattern_id", patternID).Msg("Failed to get pattern")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update pattern")
		return
	}

	if err := h.store.UpdatePatternStatus(ctx, patternID, status); err != nil {
		h.log.Error().Err(err).Str("pattern_id", patternID).Msg("Failed to update pattern status")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update pattern")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"pattern_id": patternID,
		"status":     string(status),
	})
}

// AnalyticsHandler handles run-rate and health endpoints.
type AnalyticsHandler struct {
	svc *analytics.Service
	log zerolog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc *analytics.Service, log zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, log: log}
}

func currentCashParam(r *http.Request) (decimal.Decimal, bool) {
	s := r.URL.Query().Get("current_cash")
	if s == "" {
		return decimal.Zero, true
	}
	cash, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return cash, true
}

// RunRate handles GET /api/analytics/runrate
func (h *AnalyticsHandler) RunRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	cash, ok := currentCashParam(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid current_cash")
		return
	}

	metrics, err := h.svc.RunRate(ctx, userID, cash)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute run rate")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute run rate")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, metrics)
}

// Health handles GET /api/analytics/health
func (h *AnalyticsHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	cash, ok := currentCashParam(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid current_cash")
		return
	}

	score, err := h.svc.BudgetHealth(ctx, userID, cash)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute budget health")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute budget health")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{"health_score": score})
}

// JobsHandler handles job-status endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: middleware.UserID(ctx),
		Type:   jobs.JobType(query.Get("type")),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
