package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/common"
)

// Wire keys owned by the server. Everything else in a submitted audit is
// opaque client data kept in Fields.
const (
	FieldID      = "_id"
	FieldSector  = "setor"
	FieldDate    = "data"
	FieldAuditor = "auditor"
)

// Audit is an evaluation of a sector for one day, owned by the auditor that
// submitted it. Auditor holds the owner's display name.
type Audit struct {
	ID        string
	Sector    string
	Date      Day
	Auditor   string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditInput is what a client may set on an audit: the sector and the free
// form fields. Reserved keys are dropped while decoding.
type AuditInput struct {
	Sector *string
	Fields map[string]any
}

// DecodeAuditInput splits a JSON object into sector and free form fields.
// _id, auditor and data are discarded since the server owns them.
func DecodeAuditInput(b []byte) (*AuditInput, error) {
	var raw map[string]any
	if err := UnmarshalFields(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", common.ErrValidation)
	}
	if hasNUL(raw) {
		return nil, fmt.Errorf("%w: NUL characters are not allowed", common.ErrValidation)
	}

	in := &AuditInput{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case FieldID, FieldAuditor, FieldDate:
		case FieldSector:
			s, ok := v.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("%w: %s must be a non-empty string", common.ErrValidation, FieldSector)
			}
			in.Sector = &s
		default:
			in.Fields[k] = v
		}
	}
	return in, nil
}

// Document flattens the audit into its wire form. The auditor key is only
// present when withAuditor is set.
func (a *Audit) Document(withAuditor bool) map[string]any {
	doc := make(map[string]any, len(a.Fields)+4)
	for k, v := range a.Fields {
		doc[k] = v
	}
	doc[FieldID] = a.ID
	doc[FieldSector] = a.Sector
	doc[FieldDate] = a.Date.String()
	if withAuditor {
		doc[FieldAuditor] = a.Auditor
	}
	return doc
}

// UnmarshalFields decodes a single JSON value into v keeping numbers as
// json.Number, so integers beyond float64 precision survive unchanged.
func UnmarshalFields(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// hasNUL reports whether any string or key in v contains U+0000, which
// PostgreSQL refuses in both TEXT and JSONB.
func hasNUL(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.ContainsRune(t, 0)
	case map[string]any:
		for k, e := range t {
			if strings.ContainsRune(k, 0) || hasNUL(e) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if hasNUL(e) {
				return true
			}
		}
	}
	return false
}
