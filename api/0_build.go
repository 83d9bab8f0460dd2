package api

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
	"github.com/fulldump/box/boxopenapi"

	"github.com/fulldump/ledgerdb/api/apiindexv1"
	"github.com/fulldump/ledgerdb/service"
)

func Build(s service.Servicer, version string) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1")
	v1.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
		injectServicer(s),
	)

	apiindexv1.BuildV1Index(v1, s)

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	spec := boxopenapi.Spec(b)
	spec.Info.Title = "LedgerDB"
	spec.Info.Description = "A versioned in-memory object store with undo sessions."
	b.Handle("GET", "/openapi.json", func(r *http.Request) any {

		spec.Servers = []boxopenapi.Server{
			{
				Url: "https://" + r.Host,
			},
			{
				Url: "http://" + r.Host,
			},
		}

		return spec
	})

	return b
}

func injectServicer(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(apiindexv1.SetServicer(ctx, s))
		}
	}
}
