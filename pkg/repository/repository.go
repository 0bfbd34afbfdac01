/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package repository is the typed query surface over the parcels store. Every
// operation is a single statement; guarded updates report whether a row was
// affected and a zero-row update is surfaced as a consistency conflict, never
// treated as success.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
)

type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const parcelColumns = `p.id, p.ownerId, COALESCE(o.name, ''), p.size, p.recipientAddr,
	COALESCE(p.recipientName, ''), COALESCE(p.recipientPhone, ''), p.productName, p.status,
	p.pickupDriverId, p.deliveryDriverId, p.pickupScheduledDate, p.pickupCompletedAt,
	p.deliveryCompletedAt, p.isNextPickupTarget, p.isNextDeliveryTarget, p.createdAt`

func scanParcel(row interface{ Scan(...any) error }) (*Parcel, error) {
	var p Parcel
	var pickupDriver, deliveryDriver sql.NullInt64
	var scheduled, pickupDone, deliveryDone sql.NullTime
	if err := row.Scan(&p.ID, &p.OwnerID, &p.OwnerName, &p.Size, &p.RecipientAddr,
		&p.RecipientName, &p.RecipientPhone, &p.ProductName, &p.Status,
		&pickupDriver, &deliveryDriver, &scheduled, &pickupDone,
		&deliveryDone, &p.IsNextPickupTarget, &p.IsNextDeliveryTarget, &p.CreatedAt); err != nil {
		return nil, err
	}
	if pickupDriver.Valid {
		p.PickupDriverID = &pickupDriver.Int64
	}
	if deliveryDriver.Valid {
		p.DeliveryDriverID = &deliveryDriver.Int64
	}
	if scheduled.Valid {
		p.PickupScheduledDate = &scheduled.Time
	}
	if pickupDone.Valid {
		p.PickupCompletedAt = &pickupDone.Time
	}
	if deliveryDone.Valid {
		p.DeliveryCompletedAt = &deliveryDone.Time
	}
	return &p, nil
}

// FindParcel loads a single parcel with owner and driver names joined in.
// Soft-deleted parcels are reported as not found.
func (r *Repository) FindParcel(ctx context.Context, id int64) (*Parcel, error) {
	query := `
		SELECT ` + parcelColumns + `,
		       COALESCE(pd.name, ''), COALESCE(dd.name, '')
		FROM Parcel p
		LEFT JOIN User o ON p.ownerId = o.id
		LEFT JOIN User pd ON p.pickupDriverId = pd.id
		LEFT JOIN User dd ON p.deliveryDriverId = dd.id
		WHERE p.id = ? AND p.isDeleted = 0`
	row := r.db.QueryRowContext(ctx, query, id)

	var p Parcel
	var pickupDriver, deliveryDriver sql.NullInt64
	var scheduled, pickupDone, deliveryDone sql.NullTime
	err := row.Scan(&p.ID, &p.OwnerID, &p.OwnerName, &p.Size, &p.RecipientAddr,
		&p.RecipientName, &p.RecipientPhone, &p.ProductName, &p.Status,
		&pickupDriver, &deliveryDriver, &scheduled, &pickupDone,
		&deliveryDone, &p.IsNextPickupTarget, &p.IsNextDeliveryTarget, &p.CreatedAt,
		&p.PickupDriverName, &p.DeliveryDriverName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierrors.NotFound("parcel %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("finding parcel %d, %w", id, err)
	}
	if pickupDriver.Valid {
		p.PickupDriverID = &pickupDriver.Int64
	}
	if deliveryDriver.Valid {
		p.DeliveryDriverID = &deliveryDriver.Int64
	}
	if scheduled.Valid {
		p.PickupScheduledDate = &scheduled.Time
	}
	if pickupDone.Valid {
		p.PickupCompletedAt = &pickupDone.Time
	}
	if deliveryDone.Valid {
		p.DeliveryCompletedAt = &deliveryDone.Time
	}
	return &p, nil
}

func (r *Repository) queryParcels(ctx context.Context, query string, args ...any) ([]Parcel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parcels []Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, *p)
	}
	return parcels, rows.Err()
}

// PendingPickupsForDriver returns the driver's active pickup pool: pending,
// not deleted, and scheduled for today or earlier (or unscheduled).
func (r *Repository) PendingPickupsForDriver(ctx context.Context, driverID int64) ([]Parcel, error) {
	query := `
		SELECT ` + parcelColumns + `
		FROM Parcel p
		LEFT JOIN User o ON p.ownerId = o.id
		WHERE p.pickupDriverId = ?
		AND p.status = 'PICKUP_PENDING'
		AND p.isDeleted = 0
		AND (p.pickupScheduledDate IS NULL OR DATE(p.pickupScheduledDate) <= CURDATE())
		ORDER BY p.createdAt DESC`
	parcels, err := r.queryParcels(ctx, query, driverID)
	if err != nil {
		return nil, fmt.Errorf("listing pending pickups for driver %d, %w", driverID, err)
	}
	return parcels, nil
}

// PendingDeliveriesForDriver returns the driver's outstanding deliveries.
func (r *Repository) PendingDeliveriesForDriver(ctx context.Context, driverID int64) ([]Parcel, error) {
	query := `
		SELECT ` + parcelColumns + `
		FROM Parcel p
		LEFT JOIN User o ON p.ownerId = o.id
		WHERE p.deliveryDriverId = ?
		AND p.status = 'DELIVERY_PENDING'
		AND p.isDeleted = 0
		ORDER BY p.createdAt DESC`
	parcels, err := r.queryParcels(ctx, query, driverID)
	if err != nil {
		return nil, fmt.Errorf("listing pending deliveries for driver %d, %w", driverID, err)
	}
	return parcels, nil
}

// LastCompletedPickupLocation returns the address of the driver's most recent
// pickup completed today, if any.
func (r *Repository) LastCompletedPickupLocation(ctx context.Context, driverID int64) (string, bool, error) {
	query := `
		SELECT recipientAddr
		FROM Parcel
		WHERE pickupDriverId = ?
		AND status = 'PICKUP_COMPLETED'
		AND DATE(pickupCompletedAt) = CURDATE()
		AND isDeleted = 0
		ORDER BY pickupCompletedAt DESC
		LIMIT 1`
	var addr string
	err := r.db.QueryRowContext(ctx, query, driverID).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("finding last pickup stop for driver %d, %w", driverID, err)
	}
	return addr, true, nil
}

// LastCompletedDeliveryLocation returns the address of the driver's most
// recent delivery completed today, if any.
func (r *Repository) LastCompletedDeliveryLocation(ctx context.Context, driverID int64) (string, bool, error) {
	query := `
		SELECT recipientAddr
		FROM Parcel
		WHERE deliveryDriverId = ?
		AND status = 'DELIVERY_COMPLETED'
		AND DATE(deliveryCompletedAt) = CURDATE()
		AND isDeleted = 0
		ORDER BY deliveryCompletedAt DESC
		LIMIT 1`
	var addr string
	err := r.db.QueryRowContext(ctx, query, driverID).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("finding last delivery stop for driver %d, %w", driverID, err)
	}
	return addr, true, nil
}

func (r *Repository) execGuarded(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s, %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s, %w", op, err)
	}
	if affected == 0 {
		return apierrors.Conflict("%s affected no rows", op)
	}
	return nil
}

// AssignPickup sets the pickup driver and scheduled date. The pickup driver
// is immutable once set; callers check for prior assignment before calling.
// markNext flags the parcel as the driver's next pickup target (same-day
// assignments only).
func (r *Repository) AssignPickup(ctx context.Context, parcelID, driverID int64, scheduled time.Time, markNext bool) error {
	query := `
		UPDATE Parcel
		SET pickupDriverId = ?,
		    status = 'PICKUP_PENDING',
		    isNextPickupTarget = ?,
		    pickupScheduledDate = ?
		WHERE id = ? AND isDeleted = 0`
	return r.execGuarded(ctx, fmt.Sprintf("assigning pickup %d to driver %d", parcelID, driverID),
		query, driverID, markNext, scheduled.Format("2006-01-02"), parcelID)
}

// ClearNextPickupTargets drops the next-target flag from every other pending
// parcel of the driver so at most one parcel carries it at a time.
func (r *Repository) ClearNextPickupTargets(ctx context.Context, driverID, keepParcelID int64) error {
	query := `
		UPDATE Parcel
		SET isNextPickupTarget = FALSE
		WHERE pickupDriverId = ? AND id != ? AND isNextPickupTarget = TRUE AND isDeleted = 0`
	_, err := r.db.ExecContext(ctx, query, driverID, keepParcelID)
	if err != nil {
		return fmt.Errorf("clearing next pickup targets for driver %d, %w", driverID, err)
	}
	return nil
}

// AssignDelivery sets the delivery driver on a converted parcel. Guarded on
// the parcel still being DELIVERY_PENDING.
func (r *Repository) AssignDelivery(ctx context.Context, parcelID, driverID int64) error {
	query := `
		UPDATE Parcel
		SET deliveryDriverId = ?,
		    isNextDeliveryTarget = TRUE
		WHERE id = ?
		AND status = 'DELIVERY_PENDING'
		AND isDeleted = 0`
	return r.execGuarded(ctx, fmt.Sprintf("assigning delivery %d to driver %d", parcelID, driverID),
		query, driverID, parcelID)
}

// CompletePickup advances PICKUP_PENDING to PICKUP_COMPLETED, stamping the
// completion time server-side and clearing the next-target flag.
func (r *Repository) CompletePickup(ctx context.Context, parcelID int64) error {
	query := `
		UPDATE Parcel
		SET status = 'PICKUP_COMPLETED',
		    isNextPickupTarget = FALSE,
		    pickupCompletedAt = NOW()
		WHERE id = ?
		AND status = 'PICKUP_PENDING'
		AND isDeleted = 0`
	return r.execGuarded(ctx, fmt.Sprintf("completing pickup %d", parcelID), query, parcelID)
}

// CompleteDelivery advances DELIVERY_PENDING to DELIVERY_COMPLETED.
func (r *Repository) CompleteDelivery(ctx context.Context, parcelID int64) error {
	query := `
		UPDATE Parcel
		SET status = 'DELIVERY_COMPLETED',
		    isNextDeliveryTarget = FALSE,
		    deliveryCompletedAt = NOW()
		WHERE id = ?
		AND status = 'DELIVERY_PENDING'
		AND isDeleted = 0`
	return r.execGuarded(ctx, fmt.Sprintf("completing delivery %d", parcelID), query, parcelID)
}

// ConvertPickupToDelivery advances PICKUP_COMPLETED to DELIVERY_PENDING.
func (r *Repository) ConvertPickupToDelivery(ctx context.Context, parcelID int64) error {
	query := `
		UPDATE Parcel
		SET status = 'DELIVERY_PENDING'
		WHERE id = ?
		AND status = 'PICKUP_COMPLETED'
		AND isDeleted = 0`
	return r.execGuarded(ctx, fmt.Sprintf("converting pickup %d to delivery", parcelID), query, parcelID)
}

// TodayCompletedPickupsUnclaimedForDelivery lists parcels picked up today
// that no delivery driver has claimed; input to the phase transition.
func (r *Repository) TodayCompletedPickupsUnclaimedForDelivery(ctx context.Context) ([]Parcel, error) {
	query := `
		SELECT ` + parcelColumns + `
		FROM Parcel p
		LEFT JOIN User o ON p.ownerId = o.id
		WHERE p.status = 'PICKUP_COMPLETED'
		AND DATE(p.pickupCompletedAt) = CURDATE()
		AND p.isDeleted = 0
		AND p.deliveryDriverId IS NULL`
	parcels, err := r.queryParcels(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing unclaimed completed pickups, %w", err)
	}
	return parcels, nil
}

// TodayUnassignedDeliveries lists converted parcels from today's pickups that
// still have no delivery driver.
func (r *Repository) TodayUnassignedDeliveries(ctx context.Context) ([]Parcel, error) {
	query := `
		SELECT ` + parcelColumns + `
		FROM Parcel p
		LEFT JOIN User o ON p.ownerId = o.id
		WHERE p.status = 'DELIVERY_PENDING'
		AND p.deliveryDriverId IS NULL
		AND DATE(p.pickupCompletedAt) = CURDATE()
		AND p.isDeleted = 0`
	parcels, err := r.queryParcels(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing unassigned deliveries, %w", err)
	}
	return parcels, nil
}

// PendingPickupCountsByDriver returns the active pickup backlog per driver,
// used by the all-completed sweep.
func (r *Repository) PendingPickupCountsByDriver(ctx context.Context) (map[int64]int, error) {
	query := `
		SELECT pickupDriverId, COUNT(*)
		FROM Parcel
		WHERE status = 'PICKUP_PENDING'
		AND (pickupScheduledDate IS NULL OR DATE(pickupScheduledDate) <= CURDATE())
		AND isDeleted = 0
		AND pickupDriverId IS NOT NULL
		GROUP BY pickupDriverId`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("counting pending pickups, %w", err)
	}
	defer rows.Close()

	counts := map[int64]int{}
	for rows.Next() {
		var driverID int64
		var count int
		if err := rows.Scan(&driverID, &count); err != nil {
			return nil, err
		}
		counts[driverID] = count
	}
	return counts, rows.Err()
}

// TodayCompletedPickupCount counts pickups completed today.
func (r *Repository) TodayCompletedPickupCount(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM Parcel
		WHERE status = 'PICKUP_COMPLETED'
		AND DATE(pickupCompletedAt) = CURDATE()
		AND isDeleted = 0`
	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting completed pickups, %w", err)
	}
	return count, nil
}

// DailyStatusCounts aggregates parcel state for the debug endpoint.
func (r *Repository) DailyStatusCounts(ctx context.Context) (*StatusCounts, error) {
	counts := &StatusCounts{ByStatus: map[Status]int{}}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM Parcel
		WHERE isDeleted = 0
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("aggregating status counts, %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT
		    COUNT(CASE WHEN status = 'PICKUP_COMPLETED' AND DATE(pickupCompletedAt) = CURDATE() THEN 1 END),
		    COUNT(CASE WHEN status = 'DELIVERY_COMPLETED' AND DATE(deliveryCompletedAt) = CURDATE() THEN 1 END)
		FROM Parcel
		WHERE isDeleted = 0`).Scan(&counts.TodayPickupCompleted, &counts.TodayDeliveryCompleted)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily counts, %w", err)
	}
	return counts, nil
}
