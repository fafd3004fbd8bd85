/*
Package sqlite provides the SQLite-backed implementation of every storage
interface in the repository.

PURPOSE:
  One Store implements rooms.Store, payments.Store and the billing
  engine's persistence interfaces (CycleStore, MemberSource,
  PaymentSource, AuditLog, MutationStore). In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  rooms:          Room records with current-cycle pointer and sequence
  members:        Occupants, keyed (room_id, user_id)
  presence:       One row per member per occupied calendar date
  cycles:         Billing cycles with derived totals and charges_version
  charges:        Member-charge snapshot, rewritten under version check
  payments:       Payment records (pending/completed/rejected)
  audit_entries:  Adjustment/refund audit log - APPEND ONLY

VERSIONED SNAPSHOTS:
  SaveCycle compare-and-swaps on cycles.charges_version:

    UPDATE cycles SET ..., charges_version = v+1
    WHERE id = ? AND charges_version = v

  Zero rows affected means a concurrent writer moved the snapshot and the
  caller gets billing.ErrConcurrentModification. The charge rows are
  replaced in the same transaction, so readers never see a half-written
  snapshot.

APPEND-ONLY AUDIT:
  audit_entries has no UPDATE or DELETE path. Corrections are new entries.

WAL MODE:
  SQLite is opened with WAL and foreign keys on. A sync.RWMutex guards
  multi-statement operations; with PostgreSQL, database-level concurrency
  control would take its place.

USAGE:
  st, err := sqlite.New("./data/billing.db")
  defer st.Close()
  svc := billing.NewService(st, st, st, rates, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/payments"
	"github.com/warp/billing-engine/rooms"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent across the pool.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		current_cycle_id TEXT NOT NULL DEFAULT '',
		cycle_seq INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		is_payer INTEGER NOT NULL,
		joined_at TEXT NOT NULL,
		PRIMARY KEY (room_id, user_id),
		FOREIGN KEY (room_id) REFERENCES rooms(id)
	);

	CREATE TABLE IF NOT EXISTS presence (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		day TEXT NOT NULL,
		PRIMARY KEY (room_id, user_id, day),
		FOREIGN KEY (room_id, user_id) REFERENCES members(room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		rent TEXT NOT NULL,
		electricity TEXT NOT NULL,
		internet TEXT NOT NULL,
		water_total TEXT NOT NULL,
		total_billed TEXT NOT NULL,
		member_count INTEGER NOT NULL DEFAULT 0,
		charges_version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		closed_at TEXT,
		closed_by TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (room_id) REFERENCES rooms(id)
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_room ON cycles(room_id);
	CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles(status);

	CREATE TABLE IF NOT EXISTS charges (
		cycle_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		is_payer INTEGER NOT NULL,
		presence_days INTEGER NOT NULL,
		water_own TEXT NOT NULL,
		rent TEXT NOT NULL,
		electricity TEXT NOT NULL,
		water TEXT NOT NULL,
		internet TEXT NOT NULL,
		total_due TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (cycle_id, user_id),
		FOREIGN KEY (cycle_id) REFERENCES cycles(id)
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		bill_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		verified_at TEXT,
		FOREIGN KEY (room_id) REFERENCES rooms(id)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_room_date ON payments(room_id, paid_at);
	CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);

	-- Adjustment/refund audit log. APPEND ONLY: no UPDATE, no DELETE.
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		before_total TEXT NOT NULL,
		after_total TEXT NOT NULL,
		rent_delta TEXT NOT NULL,
		electricity_delta TEXT NOT NULL,
		water_delta TEXT NOT NULL,
		internet_delta TEXT NOT NULL,
		amount TEXT NOT NULL,
		bill_type TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (cycle_id) REFERENCES cycles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_audit_cycle ON audit_entries(cycle_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROOMS - rooms.Store
// =============================================================================

func (s *Store) CreateRoom(ctx context.Context, room *rooms.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, current_cycle_id, cycle_seq, created_at) VALUES (?, ?, '', 0, ?)`,
		room.ID, room.Name, formatTime(room.CreatedAt))
	return err
}

func (s *Store) Room(ctx context.Context, id string) (*rooms.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomLocked(ctx, id)
}

func (s *Store) roomLocked(ctx context.Context, id string) (*rooms.Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, current_cycle_id, cycle_seq, created_at FROM rooms WHERE id = ?`, id)

	var r rooms.Room
	var createdAt string
	err := row.Scan(&r.ID, &r.Name, &r.CurrentCycleID, &r.CycleSeq, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func (s *Store) Rooms(ctx context.Context) ([]rooms.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, current_cycle_id, cycle_seq, created_at FROM rooms ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rooms.Room
	for rows.Next() {
		var r rooms.Room
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.CurrentCycleID, &r.CycleSeq, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) AddMember(ctx context.Context, member *rooms.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (room_id, user_id, name, is_payer, joined_at) VALUES (?, ?, ?, ?, ?)`,
		member.RoomID, member.UserID, member.Name, boolToInt(member.IsPayer), formatTime(member.JoinedAt))
	return err
}

func (s *Store) RoomMembers(ctx context.Context, roomID string) ([]rooms.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.roomLocked(ctx, roomID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, user_id, name, is_payer, joined_at FROM members
		 WHERE room_id = ? ORDER BY joined_at, user_id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rooms.Member
	for rows.Next() {
		var m rooms.Member
		var isPayer int
		var joinedAt string
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.Name, &isPayer, &joinedAt); err != nil {
			return nil, err
		}
		m.IsPayer = isPayer != 0
		m.JoinedAt = parseTime(joinedAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		presence, err := s.presenceLocked(ctx, roomID, out[i].UserID)
		if err != nil {
			return nil, err
		}
		out[i].Presence = presence
	}
	return out, nil
}

func (s *Store) presenceLocked(ctx context.Context, roomID, userID string) ([]billing.Date, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day FROM presence WHERE room_id = ? AND user_id = ? ORDER BY day`, roomID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []billing.Date
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		d, err := billing.ParseDate(day)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (s *Store) RecordPresence(ctx context.Context, roomID, userID string, day billing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM members WHERE room_id = ? AND user_id = ?`, roomID, userID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return billing.ErrMemberNotFound
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO presence (room_id, user_id, day) VALUES (?, ?, ?)`,
		roomID, userID, day.String())
	return err
}

// OpenCycle creates the cycle, bumps the room's sequence and sets its
// current-cycle pointer in one transaction.
func (s *Store) OpenCycle(ctx context.Context, room *rooms.Room, cycle *billing.BillingCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertCycle(ctx, tx, cycle); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE rooms SET current_cycle_id = ?, cycle_seq = ? WHERE id = ? AND current_cycle_id = ''`,
			cycle.ID, cycle.Sequence, room.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &billing.ValidationError{Field: "room", Message: "room already has an active cycle"}
		}
		return nil
	})
}

// =============================================================================
// BILLING CYCLES - billing.CycleStore
// =============================================================================

func (s *Store) CreateCycle(ctx context.Context, cycle *billing.BillingCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertCycle(ctx, tx, cycle)
	})
}

func insertCycle(ctx context.Context, tx *sql.Tx, c *billing.BillingCycle) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cycles (id, room_id, seq, start_date, end_date, status,
			rent, electricity, internet, water_total, total_billed,
			member_count, charges_version, created_at, closed_at, closed_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, NULL, '')`,
		c.ID, c.RoomID, c.Sequence, c.Window.Start.String(), c.Window.End.String(), string(c.Status),
		c.Rent.String(), c.Electricity.String(), c.Internet.String(),
		c.WaterTotal.String(), c.TotalBilled.String(),
		c.MemberCount, formatTime(c.CreatedAt))
	return err
}

func (s *Store) Cycle(ctx context.Context, id string) (*billing.BillingCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycleLocked(ctx, id)
}

func (s *Store) cycleLocked(ctx context.Context, id string) (*billing.BillingCycle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, room_id, seq, start_date, end_date, status,
			rent, electricity, internet, water_total, total_billed,
			member_count, charges_version, created_at, closed_at, closed_by
		 FROM cycles WHERE id = ?`, id)

	cycle, err := scanCycle(row)
	if err != nil {
		return nil, err
	}
	charges, err := s.chargesLocked(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	cycle.MemberCharges = charges
	return cycle, nil
}

func (s *Store) ActiveCycle(ctx context.Context, roomID string) (*billing.BillingCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, err := s.roomLocked(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.CurrentCycleID == "" {
		return nil, billing.ErrCycleNotFound
	}
	cycle, err := s.cycleLocked(ctx, room.CurrentCycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != billing.CycleActive {
		return nil, billing.ErrCycleNotFound
	}
	return cycle, nil
}

func (s *Store) ListActiveCycles(ctx context.Context) ([]*billing.BillingCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM cycles WHERE status = ? ORDER BY created_at, id`, string(billing.CycleActive))
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*billing.BillingCycle, 0, len(ids))
	for _, id := range ids {
		cycle, err := s.cycleLocked(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, cycle)
	}
	return out, nil
}

func (s *Store) SaveCycle(ctx context.Context, cycle *billing.BillingCycle, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return saveCycleTx(ctx, tx, cycle, expectedVersion)
	})
}

func (s *Store) CloseCycle(ctx context.Context, cycle *billing.BillingCycle, expectedVersion int, closedAt time.Time, closedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cycle.Status = billing.CycleCompleted
	cycle.ClosedAt = &closedAt
	cycle.ClosedBy = closedBy

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := saveCycleTx(ctx, tx, cycle, expectedVersion); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE rooms SET current_cycle_id = '' WHERE id = ? AND current_cycle_id = ?`,
			cycle.RoomID, cycle.ID)
		return err
	})
}

// SaveCycleWithAudit persists the cycle (CAS) and appends the audit entry
// in one transaction.
func (s *Store) SaveCycleWithAudit(ctx context.Context, cycle *billing.BillingCycle, expectedVersion int, entry billing.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := saveCycleTx(ctx, tx, cycle, expectedVersion); err != nil {
			return err
		}
		return insertAudit(ctx, tx, entry)
	})
}

// saveCycleTx writes the cycle's derived fields and rewrites its charge
// rows, compare-and-swapping on charges_version.
func saveCycleTx(ctx context.Context, tx *sql.Tx, cycle *billing.BillingCycle, expectedVersion int) error {
	var closedAt any
	if cycle.ClosedAt != nil {
		closedAt = formatTime(*cycle.ClosedAt)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE cycles SET status = ?, water_total = ?, total_billed = ?,
			member_count = ?, charges_version = ?, closed_at = ?, closed_by = ?
		 WHERE id = ? AND charges_version = ?`,
		string(cycle.Status), cycle.WaterTotal.String(), cycle.TotalBilled.String(),
		cycle.MemberCount, expectedVersion+1, closedAt, cycle.ClosedBy,
		cycle.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM cycles WHERE id = ?`, cycle.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return billing.ErrCycleNotFound
		}
		return billing.ErrConcurrentModification
	}
	cycle.ChargesVersion = expectedVersion + 1

	if _, err := tx.ExecContext(ctx, `DELETE FROM charges WHERE cycle_id = ?`, cycle.ID); err != nil {
		return err
	}
	for i, mc := range cycle.MemberCharges {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO charges (cycle_id, user_id, name, is_payer, presence_days,
				water_own, rent, electricity, water, internet, total_due, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cycle.ID, mc.UserID, mc.Name, boolToInt(mc.IsPayer), mc.PresenceDays,
			mc.WaterOwn.String(), mc.Rent.String(), mc.Electricity.String(),
			mc.Water.String(), mc.Internet.String(), mc.TotalDue.String(), i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) chargesLocked(ctx context.Context, cycleID string) ([]billing.MemberCharge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, is_payer, presence_days, water_own,
			rent, electricity, water, internet, total_due
		 FROM charges WHERE cycle_id = ? ORDER BY position`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.MemberCharge
	for rows.Next() {
		var mc billing.MemberCharge
		var isPayer int
		var waterOwn, rent, elec, water, net, total string
		if err := rows.Scan(&mc.UserID, &mc.Name, &isPayer, &mc.PresenceDays,
			&waterOwn, &rent, &elec, &water, &net, &total); err != nil {
			return nil, err
		}
		mc.IsPayer = isPayer != 0
		mc.WaterOwn = parseMoney(waterOwn)
		mc.Rent = parseMoney(rent)
		mc.Electricity = parseMoney(elec)
		mc.Water = parseMoney(water)
		mc.Internet = parseMoney(net)
		mc.TotalDue = parseMoney(total)
		out = append(out, mc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*billing.BillingCycle, error) {
	var c billing.BillingCycle
	var status, start, end string
	var rent, elec, net, water, total string
	var createdAt string
	var closedAt sql.NullString

	err := row.Scan(&c.ID, &c.RoomID, &c.Sequence, &start, &end, &status,
		&rent, &elec, &net, &water, &total,
		&c.MemberCount, &c.ChargesVersion, &createdAt, &closedAt, &c.ClosedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrCycleNotFound
	}
	if err != nil {
		return nil, err
	}

	startDate, err := billing.ParseDate(start)
	if err != nil {
		return nil, err
	}
	endDate, err := billing.ParseDate(end)
	if err != nil {
		return nil, err
	}
	c.Window = billing.Window{Start: startDate, End: endDate}
	c.Status = billing.CycleStatus(status)
	c.Rent = parseMoney(rent)
	c.Electricity = parseMoney(elec)
	c.Internet = parseMoney(net)
	c.WaterTotal = parseMoney(water)
	c.TotalBilled = parseMoney(total)
	c.CreatedAt = parseTime(createdAt)
	if closedAt.Valid {
		t := parseTime(closedAt.String)
		c.ClosedAt = &t
	}
	return &c, nil
}

// =============================================================================
// NARROW BILLING INPUTS - billing.MemberSource / billing.PaymentSource
// =============================================================================

func (s *Store) Members(ctx context.Context, roomID string) ([]billing.Member, error) {
	records, err := s.RoomMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]billing.Member, len(records))
	for i, m := range records {
		out[i] = m.BillingMember()
	}
	return out, nil
}

func (s *Store) PaymentsInWindow(ctx context.Context, roomID string, w billing.Window) ([]billing.PaymentView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payer_id, bill_type, amount, status FROM payments
		 WHERE room_id = ? AND paid_at >= ? AND paid_at <= ?
		 ORDER BY paid_at, id`,
		roomID, w.Start.String(), w.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.PaymentView
	for rows.Next() {
		var v billing.PaymentView
		var billType, amount, status string
		if err := rows.Scan(&v.PayerID, &billType, &amount, &status); err != nil {
			return nil, err
		}
		v.BillType = billing.BillType(billType)
		v.Amount = parseMoney(amount)
		v.Status = billing.PaymentStatus(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYMENTS - payments.Store
// =============================================================================

func (s *Store) CreatePayment(ctx context.Context, p *payments.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, room_id, payer_id, bill_type, amount, status, paid_at, note, created_at, verified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		p.ID, p.RoomID, p.PayerID, string(p.BillType), p.Amount.String(),
		string(p.Status), p.PaidAt.String(), p.Note, formatTime(p.CreatedAt))
	return err
}

func (s *Store) Payment(ctx context.Context, id string) (*payments.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, room_id, payer_id, bill_type, amount, status, paid_at, note, created_at, verified_at
		 FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrPaymentNotFound
	}
	return p, err
}

func (s *Store) PaymentsByRoom(ctx context.Context, roomID string) ([]payments.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, payer_id, bill_type, amount, status, paid_at, note, created_at, verified_at
		 FROM payments WHERE room_id = ? ORDER BY created_at DESC, id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payments.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) SetPaymentStatus(ctx context.Context, id string, status billing.PaymentStatus, verifiedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var verified any
	if verifiedAt != nil {
		verified = formatTime(*verifiedAt)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, verified_at = ? WHERE id = ? AND status = ?`,
		string(status), verified, id, string(billing.PaymentPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrPaymentNotFound
	}
	return nil
}

func scanPayment(row rowScanner) (*payments.Payment, error) {
	var p payments.Payment
	var billType, amount, status, paidAt, createdAt string
	var verifiedAt sql.NullString

	err := row.Scan(&p.ID, &p.RoomID, &p.PayerID, &billType, &amount, &status,
		&paidAt, &p.Note, &createdAt, &verifiedAt)
	if err != nil {
		return nil, err
	}
	p.BillType = billing.BillType(billType)
	p.Amount = parseMoney(amount)
	p.Status = billing.PaymentStatus(status)
	day, err := billing.ParseDate(paidAt)
	if err != nil {
		return nil, err
	}
	p.PaidAt = day
	p.CreatedAt = parseTime(createdAt)
	if verifiedAt.Valid {
		t := parseTime(verifiedAt.String)
		p.VerifiedAt = &t
	}
	return &p, nil
}

// =============================================================================
// AUDIT LOG - billing.AuditLog
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry billing.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertAudit(ctx, tx, entry)
	})
}

func insertAudit(ctx context.Context, tx *sql.Tx, e billing.AuditEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_entries (id, cycle_id, user_id, kind,
			before_total, after_total, rent_delta, electricity_delta, water_delta, internet_delta,
			amount, bill_type, reason, actor_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CycleID, e.UserID, string(e.Kind),
		e.BeforeTotal.String(), e.AfterTotal.String(),
		e.RentDelta.String(), e.ElectricityDelta.String(), e.WaterDelta.String(), e.InternetDelta.String(),
		e.Amount.String(), string(e.BillType), e.Reason, e.ActorID, formatTime(e.CreatedAt))
	return err
}

func (s *Store) AuditEntries(ctx context.Context, cycleID string) ([]billing.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cycle_id, user_id, kind, before_total, after_total,
			rent_delta, electricity_delta, water_delta, internet_delta,
			amount, bill_type, reason, actor_id, created_at
		 FROM audit_entries WHERE cycle_id = ? ORDER BY created_at, id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.AuditEntry
	for rows.Next() {
		var e billing.AuditEntry
		var kind, before, after, rentD, elecD, waterD, netD, amount, billType, createdAt string
		if err := rows.Scan(&e.ID, &e.CycleID, &e.UserID, &kind, &before, &after,
			&rentD, &elecD, &waterD, &netD, &amount, &billType, &e.Reason, &e.ActorID, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = billing.AuditKind(kind)
		e.BeforeTotal = parseMoney(before)
		e.AfterTotal = parseMoney(after)
		e.RentDelta = parseMoney(rentD)
		e.ElectricityDelta = parseMoney(elecD)
		e.WaterDelta = parseMoney(waterD)
		e.InternetDelta = parseMoney(netD)
		e.Amount = parseMoney(amount)
		e.BillType = billing.BillType(billType)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseMoney(s string) billing.Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return billing.ZeroMoney()
	}
	return billing.Money{Value: d}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Reset clears all data. Dev/test only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"audit_entries", "charges", "payments", "cycles", "presence", "members", "rooms"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

var _ rooms.Store = (*Store)(nil)
var _ payments.Store = (*Store)(nil)
var _ billing.MutationStore = (*Store)(nil)
var _ billing.MemberSource = (*Store)(nil)
var _ billing.PaymentSource = (*Store)(nil)
