package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const testSecret = "agent-api-key-98765"

func TestSecretString_String(t *testing.T) {
	s := SecretString(testSecret)

	result := s.String()

	if result != redactedPlaceholder {
		t.Errorf("String() = %q, want %q", result, redactedPlaceholder)
	}
	if strings.Contains(result, testSecret) {
		t.Errorf("String() leaked the raw secret value")
	}
}

func TestSecretString_Sprintf(t *testing.T) {
	s := SecretString(testSecret)

	// Both %s and %v route through the fmt.Stringer interface.
	for _, verb := range []string{"%s", "%v"} {
		result := fmt.Sprintf("key="+verb, s)
		if strings.Contains(result, testSecret) {
			t.Errorf("fmt.Sprintf(%s) leaked the raw secret: %s", verb, result)
		}
		if result != "key="+redactedPlaceholder {
			t.Errorf("fmt.Sprintf(%s) = %q, want %q", verb, result, "key="+redactedPlaceholder)
		}
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	payload := struct {
		Key SecretString `json:"key"`
	}{Key: SecretString(testSecret)}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json.Marshal returned error: %v", err)
	}
	if strings.Contains(string(data), testSecret) {
		t.Errorf("JSON encoding leaked the raw secret: %s", data)
	}
	if !strings.Contains(string(data), redactedPlaceholder) {
		t.Errorf("JSON encoding missing placeholder: %s", data)
	}
}

func TestSecretString_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("connecting", "api_key", SecretString(testSecret))

	if strings.Contains(buf.String(), testSecret) {
		t.Errorf("slog output leaked the raw secret: %s", buf.String())
	}
	if !strings.Contains(buf.String(), redactedPlaceholder) {
		t.Errorf("slog output missing placeholder: %s", buf.String())
	}
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)

	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q, want %q", s.Unmask(), testSecret)
	}
}

func TestSecretString_EmptyValue(t *testing.T) {
	s := SecretString("")

	// Even empty secrets redact; rendering must never reveal emptiness
	// vs presence.
	if s.String() != redactedPlaceholder {
		t.Errorf("String() on empty = %q, want %q", s.String(), redactedPlaceholder)
	}
	if s.Unmask() != "" {
		t.Errorf("Unmask() on empty = %q, want empty", s.Unmask())
	}
}
