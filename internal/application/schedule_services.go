package application

import (
	"context"

	"github.com/akeemphilbert/mercato/internal/domain"
	pkgdomain "github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

// CancelSchedule withdraws a pending schedule. When the schedule's target is
// a product parked in a pending-drop state, the product returns to draft in
// the same transaction.
func (s *Services) CancelSchedule(ctx context.Context, cmd CancelSchedule) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		schedule, snapshot, err := loadSchedule(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := schedule.Cancel(cmd.UserID); err != nil {
			return err
		}

		touched := []pkgdomain.Aggregate{schedule}
		state := schedule.State()
		if state.TargetAggregateType == domain.ProductKind {
			product, _, err := loadProduct(ctx, uow, state.TargetAggregateID)
			if err == nil {
				productStatus := product.State().Status
				if productStatus == domain.StatusVisiblePendingDrop || productStatus == domain.StatusHiddenPendingDrop {
					if err := product.CancelDrop(cmd.UserID); err != nil {
						return err
					}
					touched = append(touched, product)
				}
			} else if !isNotFound(err) {
				return err
			}
		}

		return persist(ctx, uow, touched...)
	})
}

// RescheduleSchedule moves a pending schedule's due time and, optionally,
// replaces its embedded command data.
func (s *Services) RescheduleSchedule(ctx context.Context, cmd RescheduleSchedule) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		schedule, snapshot, err := loadSchedule(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := schedule.Reschedule(cmd.UserID, cmd.ScheduledFor, cmd.CommandData); err != nil {
			return err
		}
		return persist(ctx, uow, schedule)
	})
}
