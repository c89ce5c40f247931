package api

import (
	"context"
	"strings"

	"qitp/internal/apierr"
	"qitp/internal/routing"
	"qitp/pkg/domain"
)

const (
	labelQuarantineTask = "检疫任务"
	labelSample         = "样品"
)

func (h *Handler) registerQuarantine(d *routing.Dispatcher) {
	d.Get("/api/quarantine/tasks", h.listQuarantineTasks)
	d.Post("/api/quarantine/tasks", h.createQuarantineTask)
	d.Get("/api/quarantine/tasks/:id", h.getQuarantineTask)
	d.Patch("/api/quarantine/tasks/:id/status", h.updateQuarantineTaskStatus)
	d.Get("/api/quarantine/samples", h.listSamples)
	d.Post("/api/quarantine/samples", h.createSample)
}

func (h *Handler) listQuarantineTasks(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	return h.list(ctx, domain.TableQuarantineTask,
		listParams(req, filters(req, "status", "inspector", "location"), "taskNo", "productName", "enterpriseName"))
}

func (h *Handler) createQuarantineTask(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "货物名称不能为空", "productName"); err != nil {
		return routing.Envelope{}, err
	}
	if appID := body.String("applicationId"); appID != "" {
		app, err := h.find(ctx, domain.TableImportApplication, appID, labelApplication)
		if err != nil {
			return routing.Envelope{}, err
		}
		setDefault(body, "enterpriseName", app.String("enterpriseName"))
	}
	body["taskNo"] = h.serial("JY")
	body["status"] = domain.StatusPending
	rec, err := h.store.Create(ctx, domain.TableQuarantineTask, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgCreated, rec), nil
}

func (h *Handler) getQuarantineTask(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	rec, err := h.find(ctx, domain.TableQuarantineTask, req.Param("id"), labelQuarantineTask)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OK(rec), nil
}

type statusBody struct {
	Status      string   `json:"status"`
	Operator    string   `json:"operator"`
	Description string   `json:"description"`
	Progress    *float64 `json:"progress"`
}

func decodeStatus(req routing.Request) (statusBody, error) {
	var body statusBody
	if err := req.Decode(&body); err != nil {
		return body, err
	}
	body.Status = strings.TrimSpace(body.Status)
	if body.Status == "" {
		return body, apierr.BadRequest("状态不能为空")
	}
	return body, nil
}

func (h *Handler) updateQuarantineTaskStatus(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeStatus(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	rec, err := h.mutate(ctx, domain.TableQuarantineTask, req.Param("id"), labelQuarantineTask,
		func(domain.Record) (domain.Record, error) {
			return domain.Record{"status": body.Status}, nil
		})
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgUpdated, rec), nil
}

func (h *Handler) listSamples(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	records, err := h.store.FindMany(ctx, domain.TableSample, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	records = whereEqual(records, "taskId", req.QueryString("taskId"))
	return h.page(records, listParams(req, filters(req, "status", "collector"), "sampleNo", "name", "variety")), nil
}

func (h *Handler) createSample(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "样品名称不能为空", "name"); err != nil {
		return routing.Envelope{}, err
	}
	if taskID := body.String("taskId"); taskID != "" {
		if _, err := h.find(ctx, domain.TableQuarantineTask, taskID, labelQuarantineTask); err != nil {
			return routing.Envelope{}, err
		}
	}
	body["sampleNo"] = h.serial("YP")
	setDefault(body, "status", domain.StatusPending)
	setDefault(body, "collectedAt", h.timestamp())
	rec, err := h.store.Create(ctx, domain.TableSample, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage("样品登记成功", rec), nil
}
