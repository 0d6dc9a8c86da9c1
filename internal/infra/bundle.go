package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// DecodeBundle parses an export bundle. Comments and trailing commas are
// accepted so hand-edited allow-lists import cleanly.
func DecodeBundle(data []byte) (domain.Bundle, error) {
	var b domain.Bundle
	if err := json.Unmarshal(jsonc.ToJSON(data), &b); err != nil {
		return domain.Bundle{}, &domain.ValidationError{Field: "bundle", Reason: err.Error()}
	}
	if b.Version != "" && !strings.HasPrefix(b.Version, "1.") {
		return domain.Bundle{}, &domain.ValidationError{
			Field:  "bundle",
			Reason: fmt.Sprintf("unsupported version %q", b.Version),
		}
	}
	return b, nil
}

// EncodeBundle renders a bundle as indented JSON.
func EncodeBundle(b domain.Bundle) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ReadBundleFile reads and decodes a bundle from path.
func ReadBundleFile(path string) (domain.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("failed to read bundle: %w", err)
	}
	return DecodeBundle(data)
}

// WriteBundleFile encodes b to path with 0600 permissions.
func WriteBundleFile(path string, b domain.Bundle) error {
	data, err := EncodeBundle(b)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	return nil
}
