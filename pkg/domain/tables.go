package domain

// Table identifies a named record table.
type Table string

// Record tables. Relations between them (for example
// importApplication.enterpriseId -> enterprise.id) are conventions only.
const (
	TableEnterprise           Table = "enterprise"
	TableImportApplication    Table = "importApplication"
	TableQuarantineTask       Table = "quarantineTask"
	TableSample               Table = "sample"
	TableIsolationTask        Table = "isolationTask"
	TableIsolationEvent       Table = "isolationEvent"
	TableIsolationEnvironment Table = "isolationEnvironment"
	TableIsolationAlert       Table = "isolationAlert"
	TableLaboratoryTask       Table = "laboratoryTask"
	TableLaboratoryResult     Table = "laboratoryResult"
	TableDecision             Table = "decision"
	TableReport               Table = "report"
	TableRelease              Table = "release"
)

// Tables lists every table in catalogue order. Persistence buckets follow this order.
func Tables() []Table {
	return []Table{
		TableEnterprise,
		TableImportApplication,
		TableQuarantineTask,
		TableSample,
		TableIsolationTask,
		TableIsolationEvent,
		TableIsolationEnvironment,
		TableIsolationAlert,
		TableLaboratoryTask,
		TableLaboratoryResult,
		TableDecision,
		TableReport,
		TableRelease,
	}
}

// Known reports whether t is part of the catalogue.
func (t Table) Known() bool {
	for _, candidate := range Tables() {
		if candidate == t {
			return true
		}
	}
	return false
}

// Status values written by the handlers. They are plain strings on the
// records; nothing validates transitions between them.
const (
	StatusActive     = "ACTIVE"
	StatusSuspended  = "SUSPENDED"
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"

	StatusPendingReview = "PENDING_REVIEW"
	StatusApproved      = "APPROVED"
	StatusRejected      = "REJECTED"

	StatusDraft  = "DRAFT"
	StatusIssued = "ISSUED"
)

// Report categories stored on report records.
const (
	ReportCategoryProcess    = "PROCESS"
	ReportCategoryLaboratory = "LABORATORY"
)
