// Package documents renders quarantine certificates and laboratory reports
// and archives them in the blob store.
package documents

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"qitp/internal/blob"
	"qitp/pkg/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ContentType is the media type of every rendered document.
const ContentType = "text/plain; charset=utf-8"

// ErrAlreadyArchived is returned when a document for the same source record
// has already been written.
var ErrAlreadyArchived = errors.New("document already archived")

// CertificateKey is the blob key of the certificate for a decision.
func CertificateKey(decisionID string) string {
	return "certificates/" + decisionID + ".txt"
}

// ReportKey is the blob key of the laboratory report for a result.
func ReportKey(resultID string) string {
	return "reports/" + resultID + ".txt"
}

type certificateView struct {
	Decision domain.Record
	IssuedAt time.Time
}

type reportView struct {
	ReportNo    string
	Task        domain.Record
	Result      domain.Record
	GeneratedAt time.Time
}

// Archive renders documents and writes them to a blob store. Writes are
// create-only, so a second document for the same record is rejected.
type Archive struct {
	blobs blob.Store
	tmpl  *template.Template
	now   func() time.Time
}

// Option customises an Archive.
type Option func(*Archive)

// WithClock overrides the timestamp printed on documents.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		if now != nil {
			a.now = now
		}
	}
}

// NewArchive parses the embedded templates.
func NewArchive(blobs blob.Store, opts ...Option) (*Archive, error) {
	if blobs == nil {
		return nil, errors.New("documents: nil blob store")
	}
	tmpl, err := template.New("documents").Funcs(template.FuncMap{
		"field": field,
		"list":  list,
		"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse document templates: %w", err)
	}
	a := &Archive{blobs: blobs, tmpl: tmpl, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// RenderCertificate renders the certificate text for decision.
func (a *Archive) RenderCertificate(decision domain.Record) ([]byte, error) {
	return a.render("certificate", certificateView{Decision: decision, IssuedAt: a.now()})
}

// RenderLaboratoryReport renders the report text for an approved result.
func (a *Archive) RenderLaboratoryReport(reportNo string, task, result domain.Record) ([]byte, error) {
	return a.render("laboratory_report", reportView{
		ReportNo:    reportNo,
		Task:        task,
		Result:      result,
		GeneratedAt: a.now(),
	})
}

// ArchiveCertificate renders and stores the certificate of decision.
func (a *Archive) ArchiveCertificate(ctx context.Context, decision domain.Record) (blob.Info, error) {
	content, err := a.RenderCertificate(decision)
	if err != nil {
		return blob.Info{}, err
	}
	return a.put(ctx, CertificateKey(decision.ID()), content, map[string]string{
		"decision-id":    decision.ID(),
		"certificate-no": decision.String("certificateNo"),
	})
}

// ArchiveLaboratoryReport renders and stores the report of result.
func (a *Archive) ArchiveLaboratoryReport(ctx context.Context, reportNo string, task, result domain.Record) (blob.Info, error) {
	content, err := a.RenderLaboratoryReport(reportNo, task, result)
	if err != nil {
		return blob.Info{}, err
	}
	return a.put(ctx, ReportKey(result.ID()), content, map[string]string{
		"result-id": result.ID(),
		"report-no": reportNo,
	})
}

// Discard removes an archived document so a failed issue or report run can
// be retried. A missing key is not an error.
func (a *Archive) Discard(ctx context.Context, key string) error {
	if _, err := a.blobs.Delete(ctx, key); err != nil {
		return fmt.Errorf("discard %s: %w", key, err)
	}
	return nil
}

// Fetch returns a stored document and, when the driver supports it, a
// pre-signed download URL. The URL is empty otherwise.
func (a *Archive) Fetch(ctx context.Context, key string) (blob.Info, []byte, string, error) {
	info, content, err := blob.ReadAll(ctx, a.blobs, key)
	if err != nil {
		return blob.Info{}, nil, "", err
	}
	url, err := a.blobs.PresignURL(ctx, key, blob.SignedURLOptions{})
	if err != nil {
		if !errors.Is(err, blob.ErrUnsupported) {
			return blob.Info{}, nil, "", fmt.Errorf("presign %s: %w", key, err)
		}
		url = ""
	}
	return info, content, url, nil
}

func (a *Archive) render(name string, view any) ([]byte, error) {
	var buf bytes.Buffer
	if err := a.tmpl.ExecuteTemplate(&buf, name, view); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (a *Archive) put(ctx context.Context, key string, content []byte, meta map[string]string) (blob.Info, error) {
	info, err := a.blobs.Put(ctx, key, bytes.NewReader(content), blob.PutOptions{
		ContentType: ContentType,
		Metadata:    meta,
	})
	if errors.Is(err, blob.ErrExists) {
		return blob.Info{}, fmt.Errorf("%w: %s", ErrAlreadyArchived, key)
	}
	if err != nil {
		return blob.Info{}, fmt.Errorf("store %s: %w", key, err)
	}
	return info, nil
}

// field prints a record value, or "-" when it is absent or blank.
func field(r domain.Record, key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return "-"
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return "-"
	}
	return s
}

func list(r domain.Record, key string) []string {
	switch v := r[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
