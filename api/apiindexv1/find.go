package apiindexv1

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
	"github.com/go-json-experiment/json"

	"github.com/fulldump/ledgerdb/service"
)

const flushEvery = 100

func find(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	params, err := readTraverseParams(r.Body)
	if err != nil {
		return err
	}

	s := GetServicer(ctx)
	indexName := box.GetUrlParameter(ctx, "indexName")

	if _, err := s.GetIndex(indexName); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/x-ndjson")

	written := 0
	return traverse(s, indexName, params, func(document service.Document) error {
		if err := json.MarshalWrite(w, document, json.Deterministic(true)); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
		written++
		if written%flushEvery == 0 {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
		return nil
	})
}
