package helpers

import (
	"io"
	"strings"

	"github.com/juju/errors"
)

// Joins non-nil errors, one per line. nil if nothing failed.
func FoldErrors(errs []error) error {
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			ss = append(ss, e.Error())
		}
	}
	if len(ss) == 0 {
		return nil
	}
	return errors.New(strings.Join(ss, "\n"))
}

// Closes every non-nil closer, even after failures.
func CloseAll(closers ...io.Closer) error {
	errs := make([]error, 0, len(closers))
	for _, c := range closers {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	return FoldErrors(errs)
}
