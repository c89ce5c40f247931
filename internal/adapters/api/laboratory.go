package api

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"qitp/internal/apierr"
	"qitp/internal/documents"
	"qitp/internal/routing"
	"qitp/pkg/domain"
)

const (
	labelLabTask   = "检测任务"
	labelLabResult = "检测结果"
)

const (
	msgReportNotApproved = "检测结果未审核通过，无法生成报告"
	msgReportExists      = "检测报告已生成"
)

func (h *Handler) registerLaboratory(d *routing.Dispatcher) {
	d.Get("/api/laboratory/tasks", h.listLabTasks)
	d.Post("/api/laboratory/tasks", h.createLabTask)
	d.Patch("/api/laboratory/tasks/:id/assign", h.assignLabTask)
	d.Post("/api/laboratory/tasks/:id/results", h.submitLabResult)
	d.Get("/api/laboratory/results", h.listLabResults)
	d.Patch("/api/laboratory/results/:id/review", h.reviewLabResult)
	d.Post("/api/laboratory/results/:id/report", h.generateLabReport)
}

func (h *Handler) listLabTasks(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	return h.list(ctx, domain.TableLaboratoryTask,
		listParams(req, filters(req, "status", "priority", "inspector"), "taskNo", "sampleName"))
}

func (h *Handler) createLabTask(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if sampleID := body.String("sampleId"); sampleID != "" {
		sample, err := h.find(ctx, domain.TableSample, sampleID, labelSample)
		if err != nil {
			return routing.Envelope{}, err
		}
		setDefault(body, "sampleName", sample.String("name"))
	}
	if err := required(body, "样品信息不能为空", "sampleName"); err != nil {
		return routing.Envelope{}, err
	}
	body["taskNo"] = h.serial("SY")
	body["status"] = domain.StatusPending
	setDefault(body, "priority", "NORMAL")
	rec, err := h.store.Create(ctx, domain.TableLaboratoryTask, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgCreated, rec), nil
}

func (h *Handler) assignLabTask(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	var body struct {
		Inspector string `json:"inspector"`
	}
	if err := req.Decode(&body); err != nil {
		return routing.Envelope{}, err
	}
	if body.Inspector == "" {
		return routing.Envelope{}, apierr.BadRequest("检测人员不能为空")
	}
	assignedAt := h.timestamp()
	rec, err := h.mutate(ctx, domain.TableLaboratoryTask, req.Param("id"), labelLabTask,
		func(domain.Record) (domain.Record, error) {
			return domain.Record{
				"inspector":  body.Inspector,
				"status":     domain.StatusInProgress,
				"assignedAt": assignedAt,
			}, nil
		})
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage("分配成功", rec), nil
}

func (h *Handler) submitLabResult(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "检测结论不能为空", "conclusion"); err != nil {
		return routing.Envelope{}, err
	}
	completedAt := h.timestamp()
	task, err := h.mutate(ctx, domain.TableLaboratoryTask, req.Param("id"), labelLabTask,
		func(domain.Record) (domain.Record, error) {
			return domain.Record{"status": domain.StatusCompleted, "completedAt": completedAt}, nil
		})
	if err != nil {
		return routing.Envelope{}, err
	}
	body["taskId"] = task.ID()
	body["taskNo"] = task.String("taskNo")
	setDefault(body, "sampleName", task.String("sampleName"))
	setDefault(body, "inspector", task.String("inspector"))
	body["status"] = domain.StatusPendingReview
	rec, err := h.store.Create(ctx, domain.TableLaboratoryResult, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage("检测结果已提交", rec), nil
}

func (h *Handler) listLabResults(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	records, err := h.store.FindMany(ctx, domain.TableLaboratoryResult, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	records = whereEqual(records, "taskId", req.QueryString("taskId"))
	return h.page(records, listParams(req, filters(req, "status", "inspector"), "taskNo", "sampleName", "conclusion")), nil
}

func (h *Handler) reviewLabResult(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	review, err := decodeReview(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	patch := review.patch(h.timestamp())
	rec, err := h.mutate(ctx, domain.TableLaboratoryResult, req.Param("id"), labelLabResult,
		func(domain.Record) (domain.Record, error) { return patch, nil })
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage("审核完成", rec), nil
}

// dropReport deletes a report record whose result could not be linked.
func (h *Handler) dropReport(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if _, err := h.store.Delete(ctx, domain.TableReport, id); err != nil {
		h.logger.Error("drop report record", zap.String("report_id", id), zap.Error(err))
	}
}

// generateLabReport archives the report document of an approved result and
// records it in the report table. The create-only blob write rejects a
// second report for the same result even under concurrent requests.
func (h *Handler) generateLabReport(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	if h.docs == nil {
		return routing.Envelope{}, errNoArchive
	}
	result, err := h.find(ctx, domain.TableLaboratoryResult, req.Param("id"), labelLabResult)
	if err != nil {
		return routing.Envelope{}, err
	}
	if result.String("status") != domain.StatusApproved {
		return routing.Envelope{}, apierr.BadRequest(msgReportNotApproved)
	}
	if result.String("reportId") != "" {
		return routing.Envelope{}, apierr.BadRequest(msgReportExists)
	}
	task, _, err := h.store.FindFirst(ctx, domain.TableLaboratoryTask, result.String("taskId"))
	if err != nil {
		return routing.Envelope{}, err
	}
	if task == nil {
		task = domain.Record{}
	}

	reportNo := h.serial("BG")
	info, err := h.docs.ArchiveLaboratoryReport(ctx, reportNo, task, result)
	if errors.Is(err, documents.ErrAlreadyArchived) {
		return routing.Envelope{}, apierr.BadRequest(msgReportExists)
	}
	if err != nil {
		return routing.Envelope{}, err
	}

	report, err := h.store.Create(ctx, domain.TableReport, domain.Record{
		"reportNo":   reportNo,
		"title":      result.String("sampleName") + "检测报告",
		"category":   domain.ReportCategoryLaboratory,
		"resultId":   result.ID(),
		"taskId":     result.String("taskId"),
		"author":     result.String("reviewer"),
		"contentKey": info.Key,
		"size":       float64(info.Size),
	})
	if err != nil {
		h.discard(ctx, info.Key)
		return routing.Envelope{}, err
	}
	if _, err := h.mutate(ctx, domain.TableLaboratoryResult, result.ID(), labelLabResult,
		func(domain.Record) (domain.Record, error) {
			return domain.Record{"reportId": report.ID(), "reportNo": reportNo}, nil
		}); err != nil {
		h.dropReport(ctx, report.ID())
		h.discard(ctx, info.Key)
		return routing.Envelope{}, err
	}
	h.logger.Info("laboratory report generated",
		zap.String("result_id", result.ID()),
		zap.String("report_no", reportNo),
		zap.String("key", info.Key),
	)
	return routing.OKMessage("报告生成成功", report), nil
}
