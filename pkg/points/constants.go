package points

const (
	operationGrant           = "grant"
	operationGrantBulk       = "grant_bulk"
	operationReserve         = "reserve"
	operationRelease         = "release"
	operationDeductReserved  = "deduct_reserved"
	operationDeductImmediate = "deduct_immediate"
	operationRefund          = "refund"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	defaultPageSize = 20
	maxPageSize     = 100
)
