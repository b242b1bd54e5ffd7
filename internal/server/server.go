package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"problinx/internal/board"
	"problinx/internal/chat"
	"problinx/internal/domain"
	"problinx/internal/engine"
	"problinx/internal/events"
	"problinx/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Chat     *chat.Dispatcher
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"title is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Problinx API, plus a stop
// function that shuts down the telemetry forwarder.
func New(cfg Config) (http.Handler, func(), error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Problinx API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerProblems(group, cfg.Engine)
	registerSolutions(group, cfg.Engine)
	registerPartners(group, cfg.Engine)
	registerChat(group, cfg.Engine, cfg.Chat)
	registerOpenAPI(router, api, basePath)

	stopTelemetry := startTelemetryForwarder(cfg.Engine)

	return router, stopTelemetry, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", ve.Message, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrEmailTaken) {
		return newAPIError(http.StatusConflict, "email_taken", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidCredentials) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	anonymous := anonymousPaths(basePath)
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if _, ok := anonymous[route]; ok {
				op.Security = []map[string][]string{}
				continue
			}
			if op.Method == http.MethodGet {
				// Browsing is anonymous.
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Problinx API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/auth/signup",
		Summary:       "Register an account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SignUpRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		u, err := e.SignUp(ctx, input.Body.Email, input.Body.Password, input.Body.DisplayName)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(auth, u.ID, u.Email, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Sign in",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		u, err := e.SignIn(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(auth, u.ID, u.Email, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "password-reset",
		Method:        http.MethodPost,
		Path:          "/auth/password-reset",
		Summary:       "Request a password reset",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PasswordResetRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.RequestPasswordReset(ctx, input.Body.Email); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current profile",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.UserProfile `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserProfile `json:"body"`
		}{Body: u}, nil
	})
}

func registerProblems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-problems",
		Method:      http.MethodGet,
		Path:        "/problems",
		Summary:     "Browse the problem board",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Category string `query:"category"`
		Reward   string `query:"reward" enum:"all,low,medium,high" default:"all"`
		Deadline string `query:"deadline" enum:"all,urgent,soon,later" default:"all"`
		Query    string `query:"q"`
		Sort     string `query:"sort" enum:"newest,oldest,reward-high,reward-low,deadline,popularity" default:"newest"`
		Page     int    `query:"page" default:"1"`
	}) (*struct {
		Body ProblemPageResponse `json:"body"`
	}, error) {
		f := board.FilterState{
			Category: input.Category,
			Reward:   board.RewardBucket(input.Reward),
			Deadline: board.DeadlineBucket(input.Deadline),
			Query:    input.Query,
			Sort:     board.SortKey(input.Sort),
			Page:     input.Page,
		}
		if f.Category == "" {
			f.Category = "all"
		}
		records, err := e.Repo.ListProblems(ctx, fetchLimit(e))
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "load_failed", "failed to load problems", nil)
		}
		now := nowFor(e)
		visible, total := board.ComputeVisible(records, f, now)
		if f.Query != "" {
			e.Events.Track(ctx, events.TypeSearch, "board", "", actorOrAnonymous(ctx), events.EventPayload{
				"query":   f.Query,
				"results": total,
			})
		}
		return &struct {
			Body ProblemPageResponse `json:"body"`
		}{Body: ProblemPageResponse{
			Items:    mapProblems(visible, now),
			Total:    total,
			Page:     board.ClampPage(f.Page, total),
			PageSize: board.PageSize,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-problem",
		Method:      http.MethodGet,
		Path:        "/problems/{problem_id}",
		Summary:     "Get problem",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProblemID string `path:"problem_id"`
	}) (*struct {
		Body ProblemResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProblem(ctx, input.ProblemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProblemResponse `json:"body"`
		}{Body: problemResponse(p, nowFor(e))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-problem",
		Method:        http.MethodPost,
		Path:          "/problems",
		Summary:       "Post a problem",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProblemRequest `json:"body"`
	}) (*struct {
		Body ProblemResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SubmitProblem(ctx, engine.ProblemCreateOptions{
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			Category:      input.Body.Category,
			Difficulty:    input.Body.Difficulty,
			Budget:        input.Body.Budget,
			Reward:        input.Body.Reward,
			Deadline:      input.Body.Deadline,
			Tags:          input.Body.Tags,
			Requirements:  input.Body.Requirements,
			SolversNeeded: input.Body.SolversNeeded,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProblemResponse `json:"body"`
		}{Body: problemResponse(p, nowFor(e))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-problem-view",
		Method:        http.MethodPost,
		Path:          "/problems/{problem_id}/views",
		Summary:       "Record a problem view",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProblemID string `path:"problem_id"`
	}) (*struct{}, error) {
		if err := e.RecordProblemView(ctx, input.ProblemID, actorOrAnonymous(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSolutions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-solution",
		Method:        http.MethodPost,
		Path:          "/problems/{problem_id}/solutions",
		Summary:       "Propose a solution",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProblemID string                `path:"problem_id"`
		Body      CreateSolutionRequest `json:"body"`
	}) (*struct {
		Body domain.Solution `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.SubmitSolution(ctx, engine.SolutionCreateOptions{
			ProblemID:     input.ProblemID,
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			Price:         input.Body.Price,
			EstimatedTime: input.Body.EstimatedTime,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Solution `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-solutions",
		Method:      http.MethodGet,
		Path:        "/problems/{problem_id}/solutions",
		Summary:     "List solutions for a problem",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProblemID string `path:"problem_id"`
	}) (*struct {
		Body []domain.Solution `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProblem(ctx, input.ProblemID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSolutions(ctx, input.ProblemID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Solution{}
		}
		return &struct {
			Body []domain.Solution `json:"body"`
		}{Body: items}, nil
	})
}

func registerPartners(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "apply-partner",
		Method:        http.MethodPost,
		Path:          "/partners/applications",
		Summary:       "Apply for partnership",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body PartnerApplyRequest `json:"body"`
	}) (*struct {
		Body domain.PartnerApplication `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ApplyPartner(ctx, engine.PartnerApplyOptions{
			CompanyName:  input.Body.CompanyName,
			Description:  input.Body.Description,
			Website:      input.Body.Website,
			ContactEmail: input.Body.ContactEmail,
			Phone:        input.Body.Phone,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PartnerApplication `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-partner-application",
		Method:      http.MethodGet,
		Path:        "/partners/applications/mine",
		Summary:     "Latest own partner application",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.PartnerApplication `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetPartnerApplicationForUser(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PartnerApplication `json:"body"`
		}{Body: a}, nil
	})
}

func registerChat(api huma.API, e engine.Engine, dispatcher *chat.Dispatcher) {
	if dispatcher == nil {
		dispatcher = &chat.Dispatcher{}
	}
	huma.Register(api, huma.Operation{
		OperationID: "chat-message",
		Method:      http.MethodPost,
		Path:        "/chat/messages",
		Summary:     "Send a chat message",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body ChatMessageRequest `json:"body"`
	}) (*struct {
		Body domain.BotReply `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Text) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		reply := dispatcher.Respond(ctx, input.Body.Text, input.Body.History)
		e.Events.Track(ctx, events.TypeChatbotMessage, "chat", "", actorOrAnonymous(ctx), events.EventPayload{
			"length": len(input.Body.Text),
		})
		return &struct {
			Body domain.BotReply `json:"body"`
		}{Body: reply}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "chat-quick-replies",
		Method:      http.MethodGet,
		Path:        "/chat/quick-replies",
		Summary:     "Quick reply shortcuts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		return &struct {
			Body []string `json:"body"`
		}{Body: chat.QuickReplies()}, nil
	})
}

func nowFor(e engine.Engine) time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func fetchLimit(e engine.Engine) int {
	if e.Config != nil && e.Config.Board.FetchLimit > 0 {
		return e.Config.Board.FetchLimit
	}
	return 50
}

func actorOrAnonymous(ctx context.Context) string {
	if p, ok := principalFromContext(ctx); ok && p.UserID != "" {
		return p.UserID
	}
	return "anonymous"
}
