package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/lib/pq"
)

// classify marks errors worth retrying with domain.ErrTransient. Anything
// else is returned unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrTransient) {
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}

func isTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "40", "08", "53":
			// serialization_failure, deadlock_detected, connection exceptions,
			// insufficient resources (too_many_connections)
			return true
		}
		return pqErr.Code == "57P01" || pqErr.Code == "57P03"
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
