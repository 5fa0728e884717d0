package domain

// ConfirmationCode is the DynamoDB representation of a pending confirmation entry.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type ConfirmationCode struct {
	Key       string `dynamodbav:"code_key"`
	Code      string `dynamodbav:"code"`
	ExpiresAt int64  `dynamodbav:"expires_at"` // TTL (Unix seconds)
}
