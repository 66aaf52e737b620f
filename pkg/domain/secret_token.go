package domain

const redacted = "[REDACTED]"

// SecretToken wraps a credential so that it never ends up in logs, error
// strings or JSON output by accident. Use Value only when the token has to be
// sent to the provider or written to the credential column of a store.
type SecretToken struct {
	value string
}

func NewSecretToken(value string) SecretToken {
	return SecretToken{value: value}
}

func (t SecretToken) Value() string {
	return t.value
}

func (t SecretToken) IsEmpty() bool {
	return t.value == ""
}

func (t SecretToken) String() string {
	return redacted
}

func (t SecretToken) GoString() string {
	return "domain.SecretToken{" + redacted + "}"
}

func (t SecretToken) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func (t SecretToken) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
