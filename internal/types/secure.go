package types

import "log/slog"

// redactedPlaceholder replaces secret values anywhere they could be
// rendered: fmt verbs, JSON encoding, and structured log attributes.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds credential material (collaborator API keys, the ops
// token, the database DSN) without leaking it through incidental
// serialization. Every rendering path is overridden to emit a placeholder;
// only an explicit Unmask call yields the plaintext.
type SecretString string

// String returns the redacted placeholder. Covers fmt.Sprintf, %v/%s
// verbs, and anything else going through fmt.Stringer.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string, so config
// dumps and API responses never carry the raw value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue implements slog.LogValuer so a SecretString passed directly as
// a log attribute is redacted by the handler.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw plaintext value. Call sites should be limited to
// the points that genuinely need the secret: Authorization headers and the
// pgx connection string.
func (s SecretString) Unmask() string {
	return string(s)
}
