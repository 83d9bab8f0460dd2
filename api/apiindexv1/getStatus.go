package apiindexv1

import (
	"context"

	"github.com/fulldump/ledgerdb/service"
)

func getStatus(ctx context.Context) (*service.Status, error) {
	return GetServicer(ctx).GetStatus()
}
