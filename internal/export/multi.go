package export

import (
	"errors"

	"github.com/muurk/drilink/internal/protocol"
)

type multiHandler []protocol.Handler

// Multi returns a handler that passes every record to each of handlers in
// order. All handlers see the record even when one fails; the errors are
// joined.
func Multi(handlers ...protocol.Handler) protocol.Handler {
	var hs multiHandler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return hs
}

func (m multiHandler) HandleRecord(rec *protocol.Record) error {
	var errs []error
	for _, h := range m {
		if err := h.HandleRecord(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
