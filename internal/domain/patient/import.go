package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// MaxImportItems caps the records accepted by one import.
const MaxImportItems = 500

var (
	ErrMalformedImport = errors.New("import body must be a JSON object or array")
	ErrTooManyItems    = fmt.Errorf("import accepts at most %d items", MaxImportItems)
)

// ImportError describes one rejected record.
type ImportError struct {
	Index  int               `json:"index"`
	ID     string            `json:"id"`
	Errors map[string]string `json:"errors"`
}

// ImportResult summarizes an import. Imported is Created plus Updated.
type ImportResult struct {
	Imported int           `json:"imported"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors"`
}

const (
	msgRecordFormat = "Format data tidak valid."
	msgStoreFailed  = "Gagal menyimpan data pasien."
)

// DecodeImport reads an import body: a JSON array of records or a single
// record object. Records are returned raw so each one can fail on its own.
func DecodeImport(r io.Reader) ([]json.RawMessage, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrMalformedImport
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
		}
		if len(items) > MaxImportItems {
			return nil, ErrTooManyItems
		}
		return items, nil
	case '{':
		if !json.Valid(body) {
			return nil, ErrMalformedImport
		}
		return []json.RawMessage{json.RawMessage(body)}, nil
	default:
		return nil, ErrMalformedImport
	}
}

// Import validates and writes every record independently. A record whose id
// matches an existing patient updates it; any other record is created,
// under its own id when it carries one. Failures are collected per record
// and never undo the records already written.
func (s *Service) Import(ctx context.Context, items []json.RawMessage) (*ImportResult, error) {
	if len(items) > MaxImportItems {
		return nil, ErrTooManyItems
	}

	res := &ImportResult{Errors: []ImportError{}}
	for i, raw := range items {
		var in Input
		if err := json.Unmarshal(raw, &in); err != nil {
			res.fail(i, "", map[string]string{"_record": msgRecordFormat})
			continue
		}

		_, created, err := s.upsert(ctx, in)
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			res.fail(i, in.ID, verr.Fields)
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zerolog.Ctx(ctx).Error().Err(err).Int("index", i).Msg("import record failed")
			res.fail(i, in.ID, map[string]string{"_store": msgStoreFailed})
		case created:
			res.Created++
		default:
			res.Updated++
		}
	}
	res.Imported = res.Created + res.Updated
	return res, nil
}

func (r *ImportResult) fail(index int, id string, fields map[string]string) {
	r.Failed++
	r.Errors = append(r.Errors, ImportError{Index: index, ID: id, Errors: fields})
}
