package server

import (
	"time"

	"problinx/internal/board"
	"problinx/internal/domain"
)

// Request payloads

type SignUpRequest struct {
	Email       string `json:"email" format:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type PasswordResetRequest struct {
	Email string `json:"email" format:"email"`
}

type CreateProblemRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Difficulty    string     `json:"difficulty,omitempty" enum:"easy,medium,hard,expert"`
	Budget        *float64   `json:"budget,omitempty"`
	Reward        *int       `json:"reward,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty" format:"date-time"`
	Tags          []string   `json:"tags"`
	Requirements  []string   `json:"requirements"`
	SolversNeeded int        `json:"solvers_needed,omitempty"`
}

type CreateSolutionRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Price         *float64 `json:"price,omitempty"`
	EstimatedTime string   `json:"estimated_time,omitempty"`
}

type PartnerApplyRequest struct {
	CompanyName  string `json:"company_name"`
	Description  string `json:"description"`
	Website      string `json:"website,omitempty"`
	ContactEmail string `json:"contact_email" format:"email"`
	Phone        string `json:"phone,omitempty"`
}

type ChatMessageRequest struct {
	Text    string   `json:"text"`
	History []string `json:"history,omitempty"`
}

// Response payloads

type AuthResponse struct {
	Token string             `json:"token"`
	User  domain.UserProfile `json:"user"`
}

type ProblemPageResponse struct {
	Items    []ProblemResponse `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

type ProblemResponse struct {
	domain.Problem
	DeadlineLabel string `json:"deadline_label"`
}

func problemResponse(p domain.Problem, now time.Time) ProblemResponse {
	return ProblemResponse{
		Problem:       p,
		DeadlineLabel: board.FormatDeadline(p.Deadline, now),
	}
}

func mapProblems(items []domain.Problem, now time.Time) []ProblemResponse {
	res := make([]ProblemResponse, 0, len(items))
	for _, p := range items {
		res = append(res, problemResponse(p, now))
	}
	return res
}
