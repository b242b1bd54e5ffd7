package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"problinx/internal/config"
	"problinx/internal/domain"
	"problinx/internal/events"
	"problinx/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ValidationError carries a user-facing message for a rejected input.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ProblemCreateOptions are parameters for posting a problem.
type ProblemCreateOptions struct {
	Title         string
	Description   string
	Category      string
	Difficulty    string
	Budget        *float64
	Reward        *int
	Deadline      *time.Time
	Tags          []string
	Requirements  []string
	SolversNeeded int
	ActorID       string
}

// SubmitProblem validates and stores a new problem posting. Title,
// description, category and deadline are required; the posting must
// carry at least one non-empty requirement and at least one tag.
func (e Engine) SubmitProblem(ctx context.Context, opts ProblemCreateOptions) (domain.Problem, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Problem{}, ValidationError{Message: "title is required"}
	}
	if strings.TrimSpace(opts.Description) == "" {
		return domain.Problem{}, ValidationError{Message: "description is required"}
	}
	if strings.TrimSpace(opts.Category) == "" {
		return domain.Problem{}, ValidationError{Message: "category is required"}
	}
	if opts.Deadline == nil {
		return domain.Problem{}, ValidationError{Message: "deadline is required"}
	}
	requirements := trimNonEmpty(opts.Requirements)
	if len(requirements) == 0 {
		return domain.Problem{}, ValidationError{Message: "at least one requirement is required"}
	}
	tags := trimNonEmpty(opts.Tags)
	if len(tags) == 0 {
		return domain.Problem{}, ValidationError{Message: "at least one tag is required"}
	}
	difficulty := opts.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	switch difficulty {
	case "easy", "medium", "hard", "expert":
	default:
		return domain.Problem{}, ValidationError{Message: fmt.Sprintf("unknown difficulty %q", difficulty)}
	}
	solvers := opts.SolversNeeded
	if solvers <= 0 {
		solvers = 1
	}

	now := e.now().UTC()
	p := domain.Problem{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(opts.Title),
		Description:   strings.TrimSpace(opts.Description),
		Category:      opts.Category,
		Difficulty:    difficulty,
		Status:        "open",
		CreatedBy:     opts.ActorID,
		Budget:        opts.Budget,
		Reward:        opts.Reward,
		Deadline:      opts.Deadline,
		Tags:          tags,
		Requirements:  requirements,
		SolversNeeded: solvers,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProblem(ctx, tx, p); err != nil {
		return domain.Problem{}, fmt.Errorf("insert problem: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeProblemPosted, "problem", p.ID, opts.ActorID, events.EventPayload{
		"title":    p.Title,
		"category": p.Category,
	}); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}

// RecordProblemView bumps the view counter and logs the view. A missing
// problem is reported as repo.ErrNotFound.
func (e Engine) RecordProblemView(ctx context.Context, problemID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.IncrementProblemViews(ctx, tx, problemID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProblemViewed, "problem", problemID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateProblemStatus moves a problem through its lifecycle. Only the
// open, in-progress and solved states are accepted.
func (e Engine) UpdateProblemStatus(ctx context.Context, problemID, status, actorID string) (domain.Problem, error) {
	switch status {
	case "open", "in-progress", "solved":
	default:
		return domain.Problem{}, ValidationError{Message: fmt.Sprintf("unknown status %q", status)}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Problem{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProblemStatus(ctx, tx, problemID, status, e.now().UTC()); err != nil {
		return domain.Problem{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProblemStatusChanged, "problem", problemID, actorID, events.EventPayload{
		"status": status,
	}); err != nil {
		return domain.Problem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Problem{}, err
	}
	return e.Repo.GetProblem(ctx, problemID)
}

// RemoveProblem deletes a problem and its solutions. The deletion is
// logged so the board's history stays auditable.
func (e Engine) RemoveProblem(ctx context.Context, problemID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProblem(ctx, tx, problemID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProblemDeleted, "problem", problemID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// SignUp registers a new account with a bcrypt-hashed password.
func (e Engine) SignUp(ctx context.Context, email, password, displayName string) (domain.UserProfile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.UserProfile{}, ValidationError{Message: "a valid email is required"}
	}
	if len(password) < 8 {
		return domain.UserProfile{}, ValidationError{Message: "password must be at least 8 characters"}
	}
	if _, _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.UserProfile{}, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.UserProfile{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserProfile{}, err
	}

	now := e.now().UTC()
	u := domain.UserProfile{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UserProfile{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u, string(hash)); err != nil {
		return domain.UserProfile{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeSignUp, "user", u.ID, u.ID, nil); err != nil {
		return domain.UserProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UserProfile{}, err
	}
	return u, nil
}

// SignIn checks credentials and returns the matching profile. Wrong
// email and wrong password are indistinguishable to the caller.
func (e Engine) SignIn(ctx context.Context, email, password string) (domain.UserProfile, error) {
	u, hash, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.UserProfile{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.UserProfile{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return domain.UserProfile{}, ErrInvalidCredentials
	}
	e.Events.Track(ctx, events.TypeLogin, "user", u.ID, u.ID, nil)
	return u, nil
}

// RequestPasswordReset records the request without revealing whether
// the address is registered.
func (e Engine) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ValidationError{Message: "email is required"}
	}
	u, _, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	e.Events.Track(ctx, events.TypePasswordResetRequest, "user", u.ID, u.ID, nil)
	return nil
}

// SolutionCreateOptions are parameters for proposing a solution.
type SolutionCreateOptions struct {
	ProblemID     string
	Title         string
	Description   string
	Price         *float64
	EstimatedTime string
	ActorID       string
}

// SubmitSolution stores a solution proposal and bumps the problem's
// submission counter in one transaction.
func (e Engine) SubmitSolution(ctx context.Context, opts SolutionCreateOptions) (domain.Solution, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Solution{}, ValidationError{Message: "title is required"}
	}
	if strings.TrimSpace(opts.Description) == "" {
		return domain.Solution{}, ValidationError{Message: "description is required"}
	}
	if _, err := e.Repo.GetProblem(ctx, opts.ProblemID); err != nil {
		return domain.Solution{}, err
	}

	now := e.now().UTC()
	s := domain.Solution{
		ID:            uuid.NewString(),
		ProblemID:     opts.ProblemID,
		Title:         strings.TrimSpace(opts.Title),
		Description:   strings.TrimSpace(opts.Description),
		CreatedBy:     opts.ActorID,
		Status:        "pending",
		Price:         opts.Price,
		EstimatedTime: opts.EstimatedTime,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Solution{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertSolution(ctx, tx, s); err != nil {
		return domain.Solution{}, fmt.Errorf("insert solution: %w", err)
	}
	if err := e.Repo.IncrementProblemSubmissions(ctx, tx, opts.ProblemID); err != nil {
		return domain.Solution{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeSolutionSubmitted, "solution", s.ID, opts.ActorID, events.EventPayload{
		"problem_id": s.ProblemID,
	}); err != nil {
		return domain.Solution{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Solution{}, err
	}
	return s, nil
}

// PartnerApplyOptions are parameters for a partner application.
type PartnerApplyOptions struct {
	CompanyName  string
	Description  string
	Website      string
	ContactEmail string
	Phone        string
	ActorID      string
}

// ApplyPartner records a pending partner application for the actor.
func (e Engine) ApplyPartner(ctx context.Context, opts PartnerApplyOptions) (domain.PartnerApplication, error) {
	if strings.TrimSpace(opts.CompanyName) == "" {
		return domain.PartnerApplication{}, ValidationError{Message: "company name is required"}
	}
	if strings.TrimSpace(opts.Description) == "" {
		return domain.PartnerApplication{}, ValidationError{Message: "description is required"}
	}
	if strings.TrimSpace(opts.ContactEmail) == "" {
		return domain.PartnerApplication{}, ValidationError{Message: "contact email is required"}
	}

	now := e.now().UTC()
	a := domain.PartnerApplication{
		ID:           uuid.NewString(),
		UserID:       opts.ActorID,
		CompanyName:  strings.TrimSpace(opts.CompanyName),
		Description:  strings.TrimSpace(opts.Description),
		Website:      opts.Website,
		ContactEmail: strings.ToLower(strings.TrimSpace(opts.ContactEmail)),
		Phone:        opts.Phone,
		Status:       "pending",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PartnerApplication{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertPartnerApplication(ctx, tx, a); err != nil {
		return domain.PartnerApplication{}, fmt.Errorf("insert application: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypePartnerApplication, "partner_application", a.ID, opts.ActorID, events.EventPayload{
		"company_name": a.CompanyName,
	}); err != nil {
		return domain.PartnerApplication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PartnerApplication{}, err
	}
	return a, nil
}

// ApprovePartner marks the user's latest application approved and
// flips their partner flag in one transaction. Users with no pending
// application come back as repo.ErrNotFound.
func (e Engine) ApprovePartner(ctx context.Context, userID, actorID string) (domain.PartnerApplication, error) {
	app, err := e.Repo.GetPartnerApplicationForUser(ctx, userID)
	if err != nil {
		return domain.PartnerApplication{}, err
	}

	now := e.now().UTC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PartnerApplication{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdatePartnerApplicationStatus(ctx, tx, app.ID, "approved", now); err != nil {
		return domain.PartnerApplication{}, err
	}
	if err := e.Repo.SetUserPartner(ctx, tx, userID, true, now); err != nil {
		return domain.PartnerApplication{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypePartnerApproved, "user", userID, actorID, events.EventPayload{
		"application_id": app.ID,
	}); err != nil {
		return domain.PartnerApplication{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PartnerApplication{}, err
	}
	app.Status = "approved"
	app.UpdatedAt = now
	return app, nil
}

func trimNonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
