package fileutil

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// RemovePaths removes every path and returns all failures together.
func RemovePaths(paths ...string) error {
	var merr *multierror.Error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := RemovePath(p); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return formatErrorOrNil(merr)
}

func formatErrorOrNil(err *multierror.Error) error {
	if err != nil {
		err.ErrorFormat = formatError
	}
	return err.ErrorOrNil()
}

func formatError(es []error) string {
	if len(es) == 1 {
		return es[0].Error()
	}

	points := make([]string, len(es))
	for i, err := range es {
		points[i] = fmt.Sprintf("* %s", err)
	}
	return fmt.Sprintf("%d errors occurred:\n\t%s", len(es), strings.Join(points, "\n\t"))
}
