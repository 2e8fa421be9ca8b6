package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/majani/coop-engine/access"
	"github.com/majani/coop-engine/compliance"
	"github.com/majani/coop-engine/factory"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/tariff"
	"github.com/majani/coop-engine/weighment"
)

// =============================================================================
// TARIFF STORE
// =============================================================================

// SaveSchedule stores a new tariff version. Versions are never rewritten:
// saving a version that exists is ErrDuplicateEntity.
func (s *Store) SaveSchedule(ctx context.Context, sched tariff.Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	doc, err := factory.Marshal(sched)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tariff_versions (version, schedule_json, effective_at, updated_by)
		VALUES (?, ?, ?, ?)
	`, sched.Version, doc, formatTime(sched.EffectiveAt), sched.UpdatedBy)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("tariff version %d: %w", sched.Version, generic.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to save tariff: %w", err)
	}
	return nil
}

// CurrentSchedule returns the highest version. ErrEntityNotFound when no
// schedule was ever saved.
func (s *Store) CurrentSchedule(ctx context.Context) (tariff.Schedule, error) {
	scheds, err := s.querySchedules(ctx, "SELECT schedule_json FROM tariff_versions ORDER BY version DESC LIMIT 1")
	if err != nil {
		return tariff.Schedule{}, err
	}
	if len(scheds) == 0 {
		return tariff.Schedule{}, fmt.Errorf("tariff: %w", generic.ErrEntityNotFound)
	}
	return scheds[0], nil
}

// GetSchedule returns one version, e.g. the one a payroll run used.
func (s *Store) GetSchedule(ctx context.Context, version int) (tariff.Schedule, error) {
	scheds, err := s.querySchedules(ctx, "SELECT schedule_json FROM tariff_versions WHERE version = ?", version)
	if err != nil {
		return tariff.Schedule{}, err
	}
	if len(scheds) == 0 {
		return tariff.Schedule{}, fmt.Errorf("tariff version %d: %w", version, generic.ErrEntityNotFound)
	}
	return scheds[0], nil
}

// ListSchedules returns every version, newest first.
func (s *Store) ListSchedules(ctx context.Context) ([]tariff.Schedule, error) {
	return s.querySchedules(ctx, "SELECT schedule_json FROM tariff_versions ORDER BY version DESC")
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...any) ([]tariff.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var scheds []tariff.Schedule
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan tariff: %w", err)
		}
		sched, err := factory.ParseSchedule(doc)
		if err != nil {
			return nil, fmt.Errorf("stored tariff is invalid: %w", err)
		}
		scheds = append(scheds, sched)
	}
	return scheds, rows.Err()
}

// =============================================================================
// INSPECTION STORE
// =============================================================================

type checklistRow struct {
	Category string `json:"category"`
	Item     string `json:"item"`
	Passed   bool   `json:"passed"`
}

// SaveInspection stores a completed inspection.
func (s *Store) SaveInspection(ctx context.Context, in compliance.Inspection) error {
	rows := make([]checklistRow, len(in.Checklist))
	for i, c := range in.Checklist {
		rows[i] = checklistRow{Category: c.Category, Item: c.Item, Passed: c.Passed}
	}
	checklist, err := json.Marshal(rows)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inspections (id, farmer_id, auditor_id, date, notes, checklist_json, score, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ID, in.FarmerID, in.AuditorID, formatTime(in.Date), in.Notes, string(checklist),
		in.Score.String(), in.Status)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("inspection %s: %w", in.ID, generic.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to save inspection: %w", err)
	}
	return nil
}

// ListInspections returns all inspections, newest first.
func (s *Store) ListInspections(ctx context.Context) ([]compliance.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, farmer_id, auditor_id, date, notes, checklist_json, score, status
		FROM inspections ORDER BY date DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query inspections: %w", err)
	}
	defer rows.Close()

	var out []compliance.Inspection
	for rows.Next() {
		var (
			in               compliance.Inspection
			auditor, notes   sql.NullString
			date, doc, score string
		)
		if err := rows.Scan(&in.ID, &in.FarmerID, &auditor, &date, &notes, &doc, &score, &in.Status); err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		var items []checklistRow
		if err := json.Unmarshal([]byte(doc), &items); err != nil {
			return nil, fmt.Errorf("inspection %s checklist: %w", in.ID, err)
		}
		for _, c := range items {
			in.Checklist = append(in.Checklist, compliance.ChecklistItem{Category: c.Category, Item: c.Item, Passed: c.Passed})
		}
		in.AuditorID = auditor.String
		in.Notes = notes.String
		in.Date = parseTime(date)
		in.Score = generic.MustParseDecimal(score)
		out = append(out, in)
	}
	return out, rows.Err()
}

// =============================================================================
// USER STORE
// =============================================================================

// SaveUser creates or replaces a staff user. Usernames are case-insensitive.
func (s *Store) SaveUser(ctx context.Context, u access.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, name, role) VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			name = excluded.name,
			role = excluded.role
	`, u.Username, u.Name, u.Role)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// ListUsers returns staff users in creation order.
func (s *Store) ListUsers(ctx context.Context) ([]access.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT username, name, role FROM users ORDER BY rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []access.User
	for rows.Next() {
		var u access.User
		if err := rows.Scan(&u.Username, &u.Name, &u.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Directory is the sign-in directory: staff plus every registered farmer.
func (s *Store) Directory(ctx context.Context) (access.Directory, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return access.Directory{}, err
	}
	farmers, err := s.ListFarmers(ctx)
	if err != nil {
		return access.Directory{}, err
	}
	members := make([]access.Member, len(farmers))
	for i, f := range farmers {
		members[i] = access.Member{ID: f.ID, Name: f.DisplayName()}
	}
	return access.Directory{Users: users, Members: members}, nil
}

// =============================================================================
// SESSION STORE
// =============================================================================

// SaveSession creates or replaces a clerk's session.
func (s *Store) SaveSession(ctx context.Context, sess weighment.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (clerk_id, active, started_at, count, weight) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(clerk_id) DO UPDATE SET
			active = excluded.active,
			started_at = excluded.started_at,
			count = excluded.count,
			weight = excluded.weight
	`, sess.ClerkID, boolInt(sess.Active), formatTime(sess.StartedAt), sess.Count, sess.Weight.Value.String())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns a clerk's session. A clerk who never opened one gets
// an inactive session.
func (s *Store) GetSession(ctx context.Context, clerkID string) (weighment.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		active, count     int
		startedAt, weight string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT active, started_at, count, weight FROM sessions WHERE clerk_id = ?", clerkID,
	).Scan(&active, &startedAt, &count, &weight)
	if errors.Is(err, sql.ErrNoRows) {
		return weighment.Session{ClerkID: clerkID, Weight: generic.Kg(0)}, nil
	}
	if err != nil {
		return weighment.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return weighment.Session{
		ClerkID:   clerkID,
		Active:    active != 0,
		StartedAt: parseTime(startedAt),
		Count:     count,
		Weight:    parseAmount(weight, string(generic.UnitKg)),
	}, nil
}

// ListActiveSessions returns every open session.
func (s *Store) ListActiveSessions(ctx context.Context) ([]weighment.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT clerk_id, started_at, count, weight FROM sessions WHERE active = 1 ORDER BY clerk_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []weighment.Session
	for rows.Next() {
		var (
			clerkID, startedAt, weight string
			count                      int
		)
		if err := rows.Scan(&clerkID, &startedAt, &count, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, weighment.Session{
			ClerkID:   clerkID,
			Active:    true,
			StartedAt: parseTime(startedAt),
			Count:     count,
			Weight:    parseAmount(weight, string(generic.UnitKg)),
		})
	}
	return out, rows.Err()
}
