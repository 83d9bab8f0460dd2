package apiindexv1

import (
	"context"

	"github.com/fulldump/ledgerdb/service"
)

const ContextServicerKey = "3c1e5d2a-8f4b-11ef-a5a4-7b0f5a3c9d21"

func SetServicer(ctx context.Context, s service.Servicer) context.Context {
	return context.WithValue(ctx, ContextServicerKey, s)
}

func GetServicer(ctx context.Context) service.Servicer {
	return ctx.Value(ContextServicerKey).(service.Servicer)
}
