package api

import (
	"context"

	"qitp/internal/routing"
	"qitp/pkg/domain"
)

const (
	labelEnterprise  = "企业"
	labelApplication = "进口申请"
)

func (h *Handler) registerEnterprises(d *routing.Dispatcher) {
	d.Get("/api/enterprises", h.listEnterprises)
	d.Post("/api/enterprises", h.createEnterprise)
	d.Get("/api/enterprises/applications", h.listApplications)
	d.Patch("/api/enterprises/applications/:id/review", h.reviewApplication)
	d.Get("/api/enterprises/:id", h.getEnterprise)
	d.Put("/api/enterprises/:id", h.updateEnterprise)
	d.Delete("/api/enterprises/:id", h.deleteEnterprise)
	d.Get("/api/enterprises/:enterpriseId/applications", h.listEnterpriseApplications)
	d.Post("/api/enterprises/:enterpriseId/applications", h.createApplication)
}

func (h *Handler) listEnterprises(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	return h.list(ctx, domain.TableEnterprise,
		listParams(req, filters(req, "status", "type"), "name", "code", "contactPerson"))
}

func (h *Handler) createEnterprise(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "企业名称和编码不能为空", "name", "code"); err != nil {
		return routing.Envelope{}, err
	}
	setDefault(body, "status", domain.StatusActive)
	rec, err := h.store.Create(ctx, domain.TableEnterprise, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgCreated, rec), nil
}

func (h *Handler) getEnterprise(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	rec, err := h.find(ctx, domain.TableEnterprise, req.Param("id"), labelEnterprise)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OK(rec), nil
}

func (h *Handler) updateEnterprise(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	rec, err := h.mutate(ctx, domain.TableEnterprise, req.Param("id"), labelEnterprise,
		func(domain.Record) (domain.Record, error) { return body, nil })
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgUpdated, rec), nil
}

func (h *Handler) deleteEnterprise(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	ok, err := h.store.Delete(ctx, domain.TableEnterprise, req.Param("id"))
	if err != nil {
		return routing.Envelope{}, err
	}
	if !ok {
		return routing.Envelope{}, notFound(labelEnterprise)
	}
	return routing.OKMessage(msgDeleted, nil), nil
}

func (h *Handler) listApplications(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	records, err := h.store.FindMany(ctx, domain.TableImportApplication, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	records = whereEqual(records, "enterpriseId", req.QueryString("enterpriseId"))
	return h.page(records, listParams(req, filters(req, "status", "originCountry"),
		"applicationNo", "productName", "enterpriseName")), nil
}

func (h *Handler) listEnterpriseApplications(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	enterpriseID := req.Param("enterpriseId")
	if _, err := h.find(ctx, domain.TableEnterprise, enterpriseID, labelEnterprise); err != nil {
		return routing.Envelope{}, err
	}
	records, err := h.store.FindMany(ctx, domain.TableImportApplication, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	records = whereEqual(records, "enterpriseId", enterpriseID)
	return h.page(records, listParams(req, filters(req, "status"), "applicationNo", "productName")), nil
}

func (h *Handler) createApplication(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	enterprise, err := h.find(ctx, domain.TableEnterprise, req.Param("enterpriseId"), labelEnterprise)
	if err != nil {
		return routing.Envelope{}, err
	}
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "货物名称不能为空", "productName"); err != nil {
		return routing.Envelope{}, err
	}
	body["enterpriseId"] = enterprise.ID()
	body["enterpriseName"] = enterprise.String("name")
	body["applicationNo"] = h.serial("SQ")
	body["status"] = domain.StatusPending
	rec, err := h.store.Create(ctx, domain.TableImportApplication, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgCreated, rec), nil
}

func (h *Handler) reviewApplication(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	review, err := decodeReview(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	patch := review.patch(h.timestamp())
	rec, err := h.mutate(ctx, domain.TableImportApplication, req.Param("id"), labelApplication,
		func(domain.Record) (domain.Record, error) { return patch, nil })
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage("审核完成", rec), nil
}
