// Package api implements the REST handlers for enterprises, quarantine,
// isolation, laboratory and report endpoints on top of the record store.
package api

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"qitp/internal/apierr"
	"qitp/internal/documents"
	"qitp/internal/query"
	"qitp/internal/routing"
	"qitp/pkg/domain"
)

const rollbackTimeout = 5 * time.Second

// Response messages.
const (
	msgCreated = "创建成功"
	msgUpdated = "更新成功"
	msgDeleted = "删除成功"
)

// Handler serves every domain endpoint. Status transitions are applied with
// RecordStore.Mutate so the lookup and the write share one critical section.
type Handler struct {
	store  domain.RecordStore
	docs   *documents.Archive
	sorter *query.Sorter
	now    func() time.Time
	logger *zap.Logger
	seq    atomic.Uint64
}

// Option customises a Handler.
type Option func(*Handler)

// WithSorter sets the collation used for list sorting.
func WithSorter(s *query.Sorter) Option {
	return func(h *Handler) {
		if s != nil {
			h.sorter = s
		}
	}
}

// WithClock overrides the time source for handler-written timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs the API handler.
func NewHandler(store domain.RecordStore, docs *documents.Archive, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		docs:   docs,
		sorter: query.DefaultSorter,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register installs every route on d. Literal routes are registered before
// parameterised siblings because the first match wins.
func (h *Handler) Register(d *routing.Dispatcher) {
	h.registerEnterprises(d)
	h.registerQuarantine(d)
	h.registerIsolation(d)
	h.registerLaboratory(d)
	h.registerReports(d)
}

// listParams reads the shared list parameters from req.
func listParams(req routing.Request, conditions map[string]any, keywordFields ...string) query.Params {
	return query.Params{
		Conditions:    conditions,
		Keyword:       req.QueryString("keyword"),
		KeywordFields: keywordFields,
		SortField:     req.QueryString("sortField"),
		SortOrder:     req.QueryString("sortOrder"),
		Page:          req.QueryInt("page", 1),
		PageSize:      req.QueryInt("pageSize", query.DefaultPageSize),
	}
}

// filters collects the named query parameters as filter conditions.
func filters(req routing.Request, names ...string) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v := req.QueryString(name); v != "" {
			out[name] = v
		}
	}
	return out
}

// page runs the query pipeline over records and wraps the result.
func (h *Handler) page(records []domain.Record, p query.Params) routing.Envelope {
	pg := h.sorter.Apply(records, p)
	return routing.Paged(pg.Items, pg.Current, pg.PageSize, pg.Total)
}

// list pages through a whole table.
func (h *Handler) list(ctx context.Context, table domain.Table, p query.Params) (routing.Envelope, error) {
	records, err := h.store.FindMany(ctx, table, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	return h.page(records, p), nil
}

// withDefaultSort applies field/order when the request does not sort.
func withDefaultSort(p query.Params, field string, order query.Order) query.Params {
	if p.SortField == "" {
		p.SortField = field
		p.SortOrder = string(order)
	}
	return p
}

// whereEqual keeps records whose field equals value exactly. Identifier
// references use it instead of the substring filter.
func whereEqual(records []domain.Record, field, value string) []domain.Record {
	if value == "" {
		return records
	}
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.String(field) == value {
			out = append(out, r)
		}
	}
	return out
}

// find returns the record or a 404 naming what is missing.
func (h *Handler) find(ctx context.Context, table domain.Table, id, label string) (domain.Record, error) {
	rec, ok, err := h.store.FindFirst(ctx, table, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(label)
	}
	return rec, nil
}

func notFound(label string) error {
	return apierr.NotFound(label + "不存在")
}

// mutate applies fn through Mutate and reports a missing record as 404.
func (h *Handler) mutate(ctx context.Context, table domain.Table, id, label string, fn func(domain.Record) (domain.Record, error)) (domain.Record, error) {
	rec, ok, err := h.store.Mutate(ctx, table, id, fn)
	if !ok && err == nil {
		return nil, notFound(label)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// decodeRecord reads a JSON object body and drops store-managed fields.
func decodeRecord(req routing.Request) (domain.Record, error) {
	body := domain.Record{}
	if err := req.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		body = domain.Record{}
	}
	delete(body, domain.FieldID)
	delete(body, domain.FieldCreatedAt)
	delete(body, domain.FieldUpdatedAt)
	return body, nil
}

// required fails with 400 unless every field holds a non-blank string.
func required(r domain.Record, message string, fields ...string) error {
	for _, f := range fields {
		if strings.TrimSpace(r.String(f)) == "" {
			return apierr.BadRequest(message)
		}
	}
	return nil
}

// setDefault stores v under key when the key is absent or blank.
func setDefault(r domain.Record, key string, v any) {
	if cur, ok := r[key]; ok && cur != nil {
		if s, isString := cur.(string); !isString || strings.TrimSpace(s) != "" {
			return
		}
	}
	r[key] = v
}

// discard removes a document archived for a record write that then failed.
// It runs detached from ctx so a disconnected client cannot leave the
// document behind to block the retry.
func (h *Handler) discard(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := h.docs.Discard(ctx, key); err != nil {
		h.logger.Error("discard document", zap.String("key", key), zap.Error(err))
	}
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

// serial returns a human-readable document number such as
// "YP-20240520093000-001". The counter never wraps; past 999 it widens.
func (h *Handler) serial(prefix string) string {
	n := h.seq.Add(1)
	return fmt.Sprintf("%s-%s-%03d", prefix, h.now().UTC().Format("20060102150405"), n)
}

// reviewBody is the payload of review endpoints.
type reviewBody struct {
	Approved *bool  `json:"approved"`
	Reviewer string `json:"reviewer"`
	Comment  string `json:"comment"`
}

func decodeReview(req routing.Request) (reviewBody, error) {
	var body reviewBody
	if err := req.Decode(&body); err != nil {
		return body, err
	}
	if body.Approved == nil {
		return body, apierr.BadRequest("缺少审核结果")
	}
	return body, nil
}

func (b reviewBody) patch(reviewedAt string) domain.Record {
	status := domain.StatusRejected
	if *b.Approved {
		status = domain.StatusApproved
	}
	return domain.Record{
		"status":        status,
		"reviewer":      b.Reviewer,
		"reviewComment": b.Comment,
		"reviewedAt":    reviewedAt,
	}
}
