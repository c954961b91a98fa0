// Package paginate exhausts an offset-paginated endpoint into a
// single slice, the generic Go realization of the original's plain
// offset-based loop over a search endpoint.
package paginate

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Fetch retrieves one page of size records starting at offset.
type Fetch[T any] func(ctx context.Context, offset, size int) ([]T, error)

// All repeatedly calls fetch with offset = len(accumulated), stopping
// when a page comes back empty or shorter than pageSize. An error on
// any page is logged and ends pagination; rows accumulated so far are
// returned without the error, matching the "errors terminate, already-
// accumulated rows are returned" contract.
func All[T any](ctx context.Context, pageSize int, fetch Fetch[T], logger *logrus.Entry) []T {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	var out []T
	for {
		page, err := fetch(ctx, len(out), pageSize)
		if err != nil {
			logger.WithError(err).WithField("offset", len(out)).Warn("pagination stopped early")
			return out
		}

		out = append(out, page...)
		if len(page) < pageSize {
			return out
		}
	}
}
