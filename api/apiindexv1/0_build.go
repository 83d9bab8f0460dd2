package apiindexv1

import (
	"errors"

	"github.com/fulldump/box"

	"github.com/fulldump/ledgerdb/service"
)

var ErrInvalidInput = errors.New("invalid input")

func BuildV1Index(v1 *box.R, s service.Servicer) *box.R {

	v1.Resource("/status").
		WithActions(
			box.Get(getStatus),
		)

	indexes := v1.Resource("/indexes").
		WithActions(
			box.Get(listIndexes),
		)

	v1.Resource("/indexes/{indexName}").
		WithActions(
			box.Get(getIndex),
			box.ActionPost(find),
		)

	v1.Resource("/indexes/{indexName}/records/{recordId}").
		WithActions(
			box.Get(getRecord),
		)

	return indexes
}
