package api

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"qitp/internal/apierr"
	"qitp/internal/blob"
	"qitp/internal/documents"
	"qitp/internal/routing"
	"qitp/pkg/domain"
)

const labelDecision = "检疫决定"

const (
	msgDecisionIssued    = "检疫决定已签发"
	msgCertificateAbsent = "证书尚未签发"
)

var errNoArchive = errors.New("document archive not configured")

func (h *Handler) registerReports(d *routing.Dispatcher) {
	d.Get("/api/reports/decisions", h.listDecisions)
	d.Post("/api/reports/decisions", h.createDecision)
	d.Patch("/api/reports/decisions/:id/issue", h.issueDecision)
	d.Get("/api/reports/decisions/:id/certificate", h.getCertificate)
	d.Get("/api/reports/process-reports", h.listProcessReports)
	d.Post("/api/reports/process-reports", h.createProcessReport)
	d.Get("/api/reports/releases", h.listReleases)
	d.Post("/api/reports/releases", h.createRelease)
}

func (h *Handler) listDecisions(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	return h.list(ctx, domain.TableDecision,
		listParams(req, filters(req, "status", "result"), "decisionNo", "productName", "enterpriseName", "certificateNo"))
}

func (h *Handler) createDecision(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "企业名称和货物名称不能为空", "enterpriseName", "productName"); err != nil {
		return routing.Envelope{}, err
	}
	body["decisionNo"] = h.serial("JD")
	body["status"] = domain.StatusDraft
	delete(body, "certificateNo")
	delete(body, "certificateKey")
	rec, err := h.store.Create(ctx, domain.TableDecision, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgCreated, rec), nil
}

// issueDecision assigns a certificate number, archives the certificate and
// marks the decision ISSUED. Issuing twice is rejected.
func (h *Handler) issueDecision(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	if h.docs == nil {
		return routing.Envelope{}, errNoArchive
	}
	var body struct {
		Issuer string `json:"issuer"`
	}
	if err := req.Decode(&body); err != nil {
		return routing.Envelope{}, err
	}
	decision, err := h.find(ctx, domain.TableDecision, req.Param("id"), labelDecision)
	if err != nil {
		return routing.Envelope{}, err
	}
	if decision.String("status") == domain.StatusIssued {
		return routing.Envelope{}, apierr.BadRequest(msgDecisionIssued)
	}

	issuedAt := h.timestamp()
	patch := domain.Record{
		"status":        domain.StatusIssued,
		"certificateNo": h.serial("ZS"),
		"issuer":        body.Issuer,
		"issuedAt":      issuedAt,
	}
	draft := decision.Clone()
	for k, v := range patch {
		draft[k] = v
	}
	info, err := h.docs.ArchiveCertificate(ctx, draft)
	if errors.Is(err, documents.ErrAlreadyArchived) {
		return routing.Envelope{}, apierr.BadRequest(msgDecisionIssued)
	}
	if err != nil {
		return routing.Envelope{}, err
	}
	patch["certificateKey"] = info.Key

	alreadyIssued := false
	rec, err := h.mutate(ctx, domain.TableDecision, decision.ID(), labelDecision,
		func(current domain.Record) (domain.Record, error) {
			if current.String("status") == domain.StatusIssued {
				alreadyIssued = true
				return nil, apierr.BadRequest(msgDecisionIssued)
			}
			return patch, nil
		})
	if err != nil {
		// the certificate of an issued decision lives under the same key
		if !alreadyIssued {
			h.discard(ctx, info.Key)
		}
		return routing.Envelope{}, err
	}
	h.logger.Info("certificate issued",
		zap.String("decision_id", rec.ID()),
		zap.String("certificate_no", rec.String("certificateNo")),
		zap.String("key", info.Key),
	)
	return routing.OKMessage("签发成功", rec), nil
}

// Certificate is the payload of the certificate download endpoint.
type Certificate struct {
	DecisionID    string `json:"decisionId"`
	CertificateNo string `json:"certificateNo"`
	Key           string `json:"key"`
	ContentType   string `json:"contentType"`
	Size          int64  `json:"size"`
	Content       string `json:"content"`
	URL           string `json:"url,omitempty"`
}

func (h *Handler) getCertificate(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	if h.docs == nil {
		return routing.Envelope{}, errNoArchive
	}
	decision, err := h.find(ctx, domain.TableDecision, req.Param("id"), labelDecision)
	if err != nil {
		return routing.Envelope{}, err
	}
	key := decision.String("certificateKey")
	if key == "" {
		return routing.Envelope{}, apierr.BadRequest(msgCertificateAbsent)
	}
	info, content, url, err := h.docs.Fetch(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return routing.Envelope{}, apierr.NotFound("证书文件不存在")
	}
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OK(Certificate{
		DecisionID:    decision.ID(),
		CertificateNo: decision.String("certificateNo"),
		Key:           info.Key,
		ContentType:   info.ContentType,
		Size:          info.Size,
		Content:       string(content),
		URL:           url,
	}), nil
}

func (h *Handler) listProcessReports(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	return h.list(ctx, domain.TableReport,
		listParams(req, filters(req, "category", "author"), "title", "reportNo"))
}

func (h *Handler) createProcessReport(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "报告标题不能为空", "title"); err != nil {
		return routing.Envelope{}, err
	}
	body["reportNo"] = h.serial("BG")
	setDefault(body, "category", domain.ReportCategoryProcess)
	body["category"] = strings.ToUpper(body.String("category"))
	rec, err := h.store.Create(ctx, domain.TableReport, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgCreated, rec), nil
}

func (h *Handler) listReleases(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	records, err := h.store.FindMany(ctx, domain.TableRelease, nil)
	if err != nil {
		return routing.Envelope{}, err
	}
	records = whereEqual(records, "decisionId", req.QueryString("decisionId"))
	return h.page(records, listParams(req, filters(req, "status"), "releaseNo", "productName", "enterpriseName")), nil
}

func (h *Handler) createRelease(ctx context.Context, req routing.Request) (routing.Envelope, error) {
	body, err := decodeRecord(req)
	if err != nil {
		return routing.Envelope{}, err
	}
	if err := required(body, "检疫决定不能为空", "decisionId"); err != nil {
		return routing.Envelope{}, err
	}
	decision, err := h.find(ctx, domain.TableDecision, body.String("decisionId"), labelDecision)
	if err != nil {
		return routing.Envelope{}, err
	}
	setDefault(body, "enterpriseName", decision.String("enterpriseName"))
	setDefault(body, "productName", decision.String("productName"))
	setDefault(body, "certificateNo", decision.String("certificateNo"))
	body["releaseNo"] = h.serial("FX")
	setDefault(body, "status", domain.StatusPending)
	rec, err := h.store.Create(ctx, domain.TableRelease, body)
	if err != nil {
		return routing.Envelope{}, err
	}
	return routing.OKMessage(msgCreated, rec), nil
}
