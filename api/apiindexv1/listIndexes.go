package apiindexv1

import (
	"context"

	"github.com/fulldump/ledgerdb/service"
)

func listIndexes(ctx context.Context) ([]*service.Index, error) {
	return GetServicer(ctx).ListIndexes()
}
