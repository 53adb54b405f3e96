package versioning

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
)

// CanonicalJSON encodes v with object keys sorted at every level, no HTML
// escaping and no insignificant whitespace. Structs are first flattened to
// generic maps so their field order cannot leak into the output.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ComputeStateHash returns the lowercase hex SHA-256 of the canonical
// {"portfolio": ..., "constituents": [...]} document.
func ComputeStateHash(snapshot models.Snapshot) (string, error) {
	constituents := snapshot.Constituents
	if constituents == nil {
		constituents = []map[string]interface{}{}
	}
	doc := map[string]interface{}{
		"portfolio":    snapshot.Portfolio,
		"constituents": constituents,
	}

	data, err := CanonicalJSON(doc)
	if err != nil {
		return "", apperrors.NewSerializationError("snapshot", err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
