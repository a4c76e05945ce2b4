package core

import "vialcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	QCStatus           = domain.QCStatus
	VialStatus         = domain.VialStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Reagent            = domain.Reagent
	Lot                = domain.Lot
	Vial               = domain.Vial
	StorageContainer   = domain.StorageContainer
	Slot               = domain.Slot
	AuditEntry         = domain.AuditEntry
	SlotUsage          = domain.SlotUsage
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityReagent    = domain.EntityReagent
	EntityLot        = domain.EntityLot
	EntityVial       = domain.EntityVial
	EntityContainer  = domain.EntityContainer
	EntitySlot       = domain.EntitySlot
	EntityAuditEntry = domain.EntityAuditEntry
)

const (
	QCPending  = domain.QCPending
	QCApproved = domain.QCApproved
	QCFailed   = domain.QCFailed
)

const (
	VialSealed   = domain.VialSealed
	VialOpened   = domain.VialOpened
	VialDepleted = domain.VialDepleted
	VialArchived = domain.VialArchived
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionAppend = domain.ActionAppend
)
