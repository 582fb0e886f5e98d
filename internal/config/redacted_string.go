package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// RedactedString holds a secret. Every printed or marshalled form hides the value.
type RedactedString string

func (r RedactedString) String() string {
	return fmt.Sprintf("<redacted-%d-chars>", len(r))
}

func (r RedactedString) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r RedactedString) MarshalBinary() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r RedactedString) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// LogValue keeps the secret out of slog records.
func (r RedactedString) LogValue() slog.Value {
	return slog.StringValue(r.String())
}
