package apiindexv1

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fulldump/box"

	"github.com/fulldump/ledgerdb/service"
)

func getRecord(ctx context.Context) (service.Document, error) {

	indexName := box.GetUrlParameter(ctx, "indexName")
	recordID := strings.TrimSpace(box.GetUrlParameter(ctx, "recordId"))

	id, err := strconv.ParseInt(recordID, 10, 64)
	if err != nil || id < 0 {
		return nil, fmt.Errorf("%w: record id '%s' must be a positive integer", ErrInvalidInput, recordID)
	}

	return GetServicer(ctx).GetRecord(indexName, id)
}
