package dynamo

// DynamoDB attribute names used in key, condition and update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldToken             = "token"
	fieldSlotKey           = "slot_key"
	fieldEventID           = "event_id"
	fieldPhone             = "phone"
	fieldState             = "state"
	fieldDeleted           = "deleted"
	fieldLeaseAttempt      = "lease_attempt"
	fieldLeaseUntil        = "lease_until"
	fieldRedeemedAt        = "redeemed_at"
	fieldRedeemedByAttempt = "redeemed_by_attempt"
	fieldAttemptID         = "attempt_id"
	fieldCode              = "code"
	fieldActive            = "active"
	fieldRemaining         = "remaining"
	fieldUnconfirmed       = "unconfirmed"
	fieldConfirmed         = "confirmed"
	fieldReserved          = "reserved"
	fieldRedeemed          = "redeemed"
	fieldHolders           = "holders"
	fieldSettled           = "settled"
	fieldReservedPhones    = "reserved_phones"
	fieldCreatedPhones     = "created_phones"
	fieldFailures          = "failures"
	fieldUpdatedAt         = "updated_at"
	fieldCreatedAt         = "created_at"
	fieldReportID          = "report_id"
	fieldDeliveryID        = "delivery_id"
)
