package apiindexv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/ledgerdb/service"
)

func getIndex(ctx context.Context) (*service.Index, error) {
	indexName := box.GetUrlParameter(ctx, "indexName")
	return GetServicer(ctx).GetIndex(indexName)
}
