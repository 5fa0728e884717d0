package dynamo

// DynamoDB attribute names used in key and update expressions across all repos.
const (
	fieldUserID    = "user_id"
	fieldEmail     = "email"
	fieldKey       = "key"
	fieldCodeKey   = "code_key"
	fieldCode      = "code"
	fieldExpiresAt = "expires_at"
	fieldIsActive  = "is_active"
	fieldUpdatedAt = "updated_at"
)
