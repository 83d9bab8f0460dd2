package apiindexv1

import (
	"fmt"
	"io"

	"github.com/SierraSoftworks/connor"
	"github.com/go-json-experiment/json"

	"github.com/fulldump/ledgerdb/service"
)

type traverseParams struct {
	Filter map[string]any `json:"filter"`
	Skip   int64          `json:"skip"`
	Limit  int64          `json:"limit"`
	Backup bool           `json:"backup"`
}

func readTraverseParams(r io.Reader) (*traverseParams, error) {
	params := &traverseParams{
		Filter: map[string]any{},
		Skip:   0,
		Limit:  1,
	}
	if err := json.UnmarshalRead(r, params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return params, nil
}

// scanChunk is the number of records read under one read lock.
var scanChunk = 256

// traverse walks the records of the index that match params.Filter,
// honoring skip and limit. A negative limit means no limit. Records are
// read in chunks and f runs with no lock held.
func traverse(s service.Servicer, indexName string, params *traverseParams, f func(document service.Document) error) error {

	hasFilter := len(params.Filter) > 0

	skip := params.Skip
	limit := params.Limit

	from := int64(0)
	for limit != 0 {

		count := scanChunk
		if !hasFilter && limit > 0 && skip+limit < int64(count) {
			count = int(skip + limit)
		}

		entries, err := s.Scan(indexName, params.Backup, from, count)
		if err != nil {
			return err
		}

		for _, entry := range entries {

			if limit == 0 {
				return nil
			}

			if hasFilter {
				match, err := connor.Match(params.Filter, entry.Document)
				if err != nil {
					return fmt.Errorf("%w: match: %w", ErrInvalidInput, err)
				}
				if !match {
					continue
				}
			}

			if skip > 0 {
				skip--
				continue
			}

			limit--
			if err := f(entry.Document); err != nil {
				return err
			}
		}

		if len(entries) < count {
			return nil
		}
		from = entries[len(entries)-1].ID + 1
	}

	return nil
}
