package api

import (
	"context"

	"qitp/internal/query"
	"qitp/internal/routing"
	"qitp/pkg/domain"
)

const (
	labelIsolationTask = "隔离任务"
	labelAlert         = "告警"
)

// Isolation event types written to the timeline.
const (
	eventCreated      = "CREATED"
	eventStatusChange = "STATUS_CHANGE"
)

func (h *Handler) registerIsolation(d *routing.Dispatcher) {
	d.Get("/api/isolation/tasks", h.listIsolationTasks)
	d.Post("/api/isolation/tasks", h.createIsolationTask)
	d.Patch("/api/isolation/tasks/:id/status", h.updateIsolationTaskStatus)
	d.Get("/api/isolation/environment", h.listEnvironment)
	d.Get("/api/isolation/timeline", h.listTimeline)
	d.Get("/api/isolation/alerts", h.listAlerts)
	d.Patch("/api/isolation/alerts/:id/read", h.markAlertRead)
	d.Get("/api/isolation/statistics", h.isolationStatistics)
	d.Get("/api/isolation/samples", h.listIsolationSamples)
}

func (h *Handler) listIsolationTasks(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	return h.list(ctx, domain.TableIsolationTask,
		listParams(req, filters(req, "status", "greenhouse"), "taskNo", "productName"))
}

func (h *Handler) createIsolationTask(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "货物名称和隔离温室不能为空", "productName", "greenhouse"); err != nil {
		return routing.Envelope{}, err
	}
	if sampleID := body.String("sampleId"); sampleID != "" {
		if _, err := h.find(ctx, domain.TableSample, sampleID, labelSample); err != nil {
			return routing.Envelope{}, err
		}
	}
	body["taskNo"] = h.serial("GL")
	body["status"] = domain.StatusPending
	setDefault(body, "progress", float64(0))
	rec, err := h.store.Create(ctx, domain.TableIsolationTask, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := h.appendEvent(ctx, domain.Record{
		"taskId":      rec.ID(),
		"type":        eventCreated,
		"toStatus":    domain.StatusPending,
		"description": "创建隔离任务",
		"operator":    body.String("operator"),
	}); err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgCreated, rec), nil
}

func (h *Handler) updateIsolationTaskStatus(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeStatus(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	var from string
	rec, err := h.mutate(ctx, domain.TableIsolationTask, req.Param("id"), labelIsolationTask,
		func(current domain.Record) (domain.Record, error) {
			from = current.String("status")
			patch := domain.Record{"status": body.Status}
			switch {
			case body.Progress != nil:
				patch["progress"] = *body.Progress
			case body.Status == domain.StatusCompleted:
				patch["progress"] = float64(100)
			}
			return patch, nil
		})
	if err != nil {
		return routing.Envelope{}, err
	}
	description := body.Description
	if description == "" {
		description = "状态变更为 " + body.Status
	}
	if err := h.appendEvent(ctx, domain.Record{
		"taskId":      rec.ID(),
		"type":        eventStatusChange,
		"fromStatus":  from,
		"toStatus":    body.Status,
		"description": description,
		"operator":    body.Operator,
	}); err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgUpdated, rec), nil
}

func (h *Handler) appendEvent(ctx context.Context, event domain.Record) error {
	event["occurredAt"] = h.timestamp()
	_, err := h.store.Create(ctx, domain.TableIsolationEvent, event)
	return err
}

func (h *Handler) listEnvironment(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	p := listParams(req, filters(req, "greenhouse"))
	return h.list(ctx, domain.TableIsolationEnvironment, withDefaultSort(p, "recordedAt", query.Descending))
}

func (h *Handler) listTimeline(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	records, err := h.store.FindMany(ctx, domain.TableIsolationEvent, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	records = whereEqual(records, "taskId", req.QueryString("taskId"))
	p := listParams(req, filters(req, "type"), "description", "operator")
	return h.page(records, withDefaultSort(p, "occurredAt", query.Ascending)), nil
}

func (h *Handler) listAlerts(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	p := listParams(req, filters(req, "level", "read", "greenhouse"), "message")
	return h.list(ctx, domain.TableIsolationAlert, withDefaultSort(p, "occurredAt", query.Descending))
}

func (h *Handler) markAlertRead(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	readAt := h.timestamp()
	rec, err := h.mutate(ctx, domain.TableIsolationAlert, req.Param("id"), labelAlert,
		func(domain.Record) (domain.Record, error) {
			return domain.Record{"read": true, "readAt": readAt}, nil
		})
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage("已标记为已读", rec), nil
}

// IsolationStatistics summarises the isolation dashboard.
type IsolationStatistics struct {
	TotalTasks        int            `json:"totalTasks"`
	TasksByStatus     map[string]int `json:"tasksByStatus"`
	IsolationSamples  int            `json:"isolationSamples"`
	UnreadAlerts      int            `json:"unreadAlerts"`
	LatestEnvironment domain.Record  `json:"latestEnvironment"`
}

func (h *Handler) isolationStatistics(ctx context.Context, _ routing.Request) (routing.Envelope, error) {
	tasks, err := h.store.FindMany(ctx, domain.TableIsolationTask, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	stats := IsolationStatistics{TotalTasks: len(tasks), TasksByStatus: map[string]int{}}
	for _, t := range tasks {
		stats.TasksByStatus[t.String("status")]++
	}
	samples, err := h.store.FindMany(ctx, domain.TableSample, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	for _, s := range samples {
		if s.String("isolationTaskId") != "" {
			stats.IsolationSamples++
		}
	}
	unread, err := h.store.Count(ctx, domain.TableIsolationAlert, domain.Where{"read": false})
	if err != nil {
		return routing.Envelope{}, err
	}
	stats.UnreadAlerts = unread
	readings, err := h.store.FindMany(ctx, domain.TableIsolationEnvironment, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	if latest := h.sorter.Sort(readings, "recordedAt", string(query.Descending)); len(latest) > 0 {
		stats.LatestEnvironment = latest[0]
	}
	return routing.OK(stats), nil
}

func (h *Handler) listIsolationSamples(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	records, err := h.store.FindMany(ctx, domain.TableSample, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	linked := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.String("isolationTaskId") != "" {
			linked = append(linked, r)
		}
	}
	linked = whereEqual(linked, "isolationTaskId", req.QueryString("taskId"))
	return h.page(linked, listParams(req, filters(req, "status"), "sampleNo", "name", "variety")), nil
}
