package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"problinx/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const problemColumns = `id,title,description,category,difficulty,status,created_by,budget,reward,deadline,tags_json,requirements_json,solvers_needed,submissions,views,created_at,updated_at`

func (r Repo) InsertProblem(ctx context.Context, tx *sql.Tx, p domain.Problem) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	reqs, err := json.Marshal(p.Requirements)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO problems(`+problemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, p.Description, p.Category, p.Difficulty, p.Status, p.CreatedBy,
		nullableFloatPtr(p.Budget), nullableIntPtr(p.Reward), nullableTimePtr(p.Deadline),
		string(tags), string(reqs), p.SolversNeeded, p.Submissions, p.Views,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

func (r Repo) GetProblem(ctx context.Context, id string) (domain.Problem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+problemColumns+` FROM problems WHERE id=?`, id)
	return scanProblemRow(row.Scan)
}

// ListProblems returns the newest problems up to limit, matching the
// single fetch the board works from.
func (r Repo) ListProblems(ctx context.Context, limit int) ([]domain.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Problem
	for rows.Next() {
		p, err := scanProblemRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) IncrementProblemViews(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE problems SET views=views+1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) IncrementProblemSubmissions(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE problems SET submissions=submissions+1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateProblemStatus(ctx context.Context, tx *sql.Tx, id, status string, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE problems SET status=?, updated_at=? WHERE id=?`, status, formatTime(updatedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProblem removes a problem and its solutions.
func (r Repo) DeleteProblem(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM solutions WHERE problem_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM problems WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProblemRow(scan func(dest ...any) error) (domain.Problem, error) {
	var p domain.Problem
	var budget sql.NullFloat64
	var reward sql.NullInt64
	var deadline, createdAt, updatedAt sql.NullString
	var tags, reqs string
	err := scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.Difficulty, &p.Status, &p.CreatedBy,
		&budget, &reward, &deadline, &tags, &reqs, &p.SolversNeeded, &p.Submissions, &p.Views, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if budget.Valid {
		p.Budget = &budget.Float64
	}
	if reward.Valid {
		v := int(reward.Int64)
		p.Reward = &v
	}
	if deadline.Valid {
		t, err := parseTime(deadline.String)
		if err != nil {
			return p, fmt.Errorf("problem %s deadline: %w", p.ID, err)
		}
		p.Deadline = &t
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return p, fmt.Errorf("problem %s tags: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(reqs), &p.Requirements); err != nil {
		return p, fmt.Errorf("problem %s requirements: %w", p.ID, err)
	}
	if p.CreatedAt, err = parseTime(createdAt.String); err != nil {
		return p, fmt.Errorf("problem %s created_at: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt.String); err != nil {
		return p, fmt.Errorf("problem %s updated_at: %w", p.ID, err)
	}
	return p, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.UserProfile, passwordHash string) error {
	skills, err := json.Marshal(u.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO users(id,email,display_name,password_hash,is_partner,bio,skills_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Email, nullable(u.DisplayName), passwordHash, boolToInt(u.IsPartner), nullable(u.Bio), string(skills),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	return err
}

const userColumns = `id,email,display_name,password_hash,is_partner,bio,skills_json,created_at,updated_at`

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.UserProfile, string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(email))
	return scanUser(row.Scan)
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.UserProfile, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	u, _, err := scanUser(row.Scan)
	return u, err
}

func (r Repo) SetUserPartner(ctx context.Context, tx *sql.Tx, id string, isPartner bool, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET is_partner=?, updated_at=? WHERE id=?`, boolToInt(isPartner), formatTime(updatedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(scan func(dest ...any) error) (domain.UserProfile, string, error) {
	var u domain.UserProfile
	var displayName, bio, skills sql.NullString
	var hash string
	var isPartner int
	var createdAt, updatedAt string
	err := scan(&u.ID, &u.Email, &displayName, &hash, &isPartner, &bio, &skills, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return u, "", ErrNotFound
	}
	if err != nil {
		return u, "", err
	}
	u.DisplayName = displayName.String
	u.Bio = bio.String
	u.IsPartner = isPartner != 0
	if skills.Valid && skills.String != "" {
		if err := json.Unmarshal([]byte(skills.String), &u.Skills); err != nil {
			return u, "", fmt.Errorf("user %s skills: %w", u.ID, err)
		}
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return u, "", fmt.Errorf("user %s created_at: %w", u.ID, err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return u, "", fmt.Errorf("user %s updated_at: %w", u.ID, err)
	}
	return u, hash, nil
}

const solutionColumns = `id,problem_id,title,description,created_by,status,price,estimated_time,created_at,updated_at`

func (r Repo) InsertSolution(ctx context.Context, tx *sql.Tx, s domain.Solution) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO solutions(`+solutionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProblemID, s.Title, s.Description, s.CreatedBy, s.Status,
		nullableFloatPtr(s.Price), nullable(s.EstimatedTime), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

func (r Repo) ListSolutions(ctx context.Context, problemID string) ([]domain.Solution, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+solutionColumns+` FROM solutions WHERE problem_id=? ORDER BY created_at DESC, id DESC`, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Solution
	for rows.Next() {
		var s domain.Solution
		var price sql.NullFloat64
		var estimated sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.ProblemID, &s.Title, &s.Description, &s.CreatedBy, &s.Status, &price, &estimated, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if price.Valid {
			s.Price = &price.Float64
		}
		s.EstimatedTime = estimated.String
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("solution %s created_at: %w", s.ID, err)
		}
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("solution %s updated_at: %w", s.ID, err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertPartnerApplication(ctx context.Context, tx *sql.Tx, a domain.PartnerApplication) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO partner_applications(id,user_id,company_name,description,website,contact_email,phone,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.CompanyName, a.Description, nullable(a.Website), a.ContactEmail, nullable(a.Phone),
		a.Status, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return err
}

func (r Repo) UpdatePartnerApplicationStatus(ctx context.Context, tx *sql.Tx, id, status string, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE partner_applications SET status=?, updated_at=? WHERE id=?`, status, formatTime(updatedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetPartnerApplicationForUser(ctx context.Context, userID string) (domain.PartnerApplication, error) {
	var a domain.PartnerApplication
	var website, phone sql.NullString
	var createdAt, updatedAt string
	err := r.DB.QueryRowContext(ctx, `SELECT id,user_id,company_name,description,website,contact_email,phone,status,created_at,updated_at FROM partner_applications WHERE user_id=? ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&a.ID, &a.UserID, &a.CompanyName, &a.Description, &website, &a.ContactEmail, &phone, &a.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Website = website.String
	a.Phone = phone.String
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return a, fmt.Errorf("application %s created_at: %w", a.ID, err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return a, fmt.Errorf("application %s updated_at: %w", a.ID, err)
	}
	return a, nil
}

// LatestEvents returns the newest events, optionally filtered by type.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTimePtr(v *time.Time) any {
	if v == nil {
		return nil
	}
	return formatTime(*v)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
