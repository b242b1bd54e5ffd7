package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"problinx/internal/board"
	"problinx/internal/chat"
	"problinx/internal/chat/gemini"
	"problinx/internal/config"
	"problinx/internal/db"
	"problinx/internal/engine"
	"problinx/internal/migrate"
	"problinx/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "problinx",
	Short: "Problinx CLI",
	Long: `Problinx is a marketplace where businesses post problems and solvers
propose solutions. The CLI manages the local workspace, browses the
problem board, and runs the HTTP API server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PROBLINX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(problemCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var siteName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default problinx.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(siteName)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&siteName, "site-name", "problinx", "site name")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func problemCmd() *cobra.Command {
	p := &cobra.Command{Use: "problem", Short: "Browse and post problems"}
	p.AddCommand(problemListCmd())
	p.AddCommand(problemShowCmd())
	p.AddCommand(problemPostCmd())
	return p
}

func problemListCmd() *cobra.Command {
	var category, reward, deadline, query, sort string
	var page int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List problems on the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := board.FilterState{
					Category: category,
					Reward:   board.RewardBucket(reward),
					Deadline: board.DeadlineBucket(deadline),
					Query:    query,
					Sort:     board.SortKey(sort),
					Page:     page,
				}
				if !board.ValidRewardBucket(f.Reward) {
					return fmt.Errorf("unknown reward bucket %q", reward)
				}
				if !board.ValidDeadlineBucket(f.Deadline) {
					return fmt.Errorf("unknown deadline bucket %q", deadline)
				}
				if !board.ValidSortKey(f.Sort) {
					return fmt.Errorf("unknown sort %q", sort)
				}
				records, err := e.Repo.ListProblems(ctx, e.Config.Board.FetchLimit)
				if err != nil {
					return err
				}
				now := time.Now()
				visible, total := board.ComputeVisible(records, f, now)
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"items": visible,
						"total": total,
						"page":  board.ClampPage(page, total),
					})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Reward", "Deadline", "Views"})
				for _, p := range visible {
					rewardCol := ""
					if p.Reward != nil {
						rewardCol = fmt.Sprintf("$%d", *p.Reward)
					}
					tw.AppendRow(table.Row{p.ID, p.Title, p.Category, rewardCol, board.FormatDeadline(p.Deadline, now), p.Views})
				}
				tw.Render()
				fmt.Printf("%d matching, page %d\n", total, board.ClampPage(page, total))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "all", "category filter")
	cmd.Flags().StringVar(&reward, "reward", "all", "reward bucket (all, low, medium, high)")
	cmd.Flags().StringVar(&deadline, "deadline", "all", "deadline bucket (all, urgent, soon, later)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "search text")
	cmd.Flags().StringVar(&sort, "sort", "newest", "sort key (newest, oldest, reward-high, reward-low, deadline, popularity)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func problemShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProblem(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func problemPostCmd() *cobra.Command {
	var title, description, category, difficulty, deadlineStr string
	var tags, requirements []string
	var reward, solvers int
	var budget float64
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a problem",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ProblemCreateOptions{
					Title:         title,
					Description:   description,
					Category:      category,
					Difficulty:    difficulty,
					Tags:          tags,
					Requirements:  requirements,
					SolversNeeded: solvers,
					ActorID:       viper.GetString("actor-id"),
				}
				if deadlineStr != "" {
					d, err := time.Parse(time.RFC3339, deadlineStr)
					if err != nil {
						return fmt.Errorf("invalid --deadline, want RFC 3339: %w", err)
					}
					opts.Deadline = &d
				}
				if cmd.Flags().Changed("reward") {
					opts.Reward = &reward
				}
				if cmd.Flags().Changed("budget") {
					opts.Budget = &budget
				}
				p, err := e.SubmitProblem(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "problem title")
	cmd.Flags().StringVar(&description, "description", "", "problem description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "difficulty (easy, medium, hard, expert)")
	cmd.Flags().StringVar(&deadlineStr, "deadline", "", "deadline (RFC 3339)")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "tag (repeatable)")
	cmd.Flags().StringArrayVar(&requirements, "require", []string{}, "requirement (repeatable)")
	cmd.Flags().IntVar(&reward, "reward", 0, "reward in dollars")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget in dollars")
	cmd.Flags().IntVar(&solvers, "solvers", 1, "solvers needed")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage local accounts"}
	u.AddCommand(userSignupCmd())
	u.AddCommand(userLoginCmd())
	return u
}

func userSignupCmd() *cobra.Command {
	var email, password, displayName string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SignUp(ctx, email, password, displayName)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SignIn(ctx, email, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func adminCmd() *cobra.Command {
	a := &cobra.Command{Use: "admin", Short: "Maintenance operations"}
	a.AddCommand(adminProblemStatusCmd())
	a.AddCommand(adminProblemDeleteCmd())
	a.AddCommand(adminPartnerApproveCmd())
	return a
}

func adminProblemStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "problem-status <id> <status>",
		Short: "Move a problem to open, in-progress or solved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProblemStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func adminProblemDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "problem-delete <id>",
		Short: "Delete a problem and its solutions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RemoveProblem(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("Deleted problem %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func adminPartnerApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partner-approve <user-id>",
		Short: "Approve a user's partner application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				app, err := e.ApprovePartner(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant",
		Long:  "Interactive chat. Type /clear to reset the conversation, /quit to exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dispatcher := newDispatcher(cfg)
			history := chat.NewHistory()
			printTurns(history)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/quit":
					return nil
				case "/clear":
					history.Clear()
					printTurns(history)
					continue
				}
				recent := history.RecentUserTexts(chat.HistoryWindow)
				history.Add("user", line)
				reply := dispatcher.Respond(cmd.Context(), line, recent)
				history.Add("bot", reply.Text)
				fmt.Println(reply.Text)
				for _, s := range reply.Suggestions {
					fmt.Printf("  - %s\n", s)
				}
			}
		},
	}
	return cmd
}

func printTurns(h *chat.History) {
	for _, turn := range h.Turns() {
		fmt.Printf("[%s] %s\n", turn.Sender, turn.Text)
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.Repo.LatestEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret: os.Getenv("PROBLINX_JWT_SECRET"),
				TokenTTL:  time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PROBLINX_JWT_SECRET is required for bearer auth")
			}
			handler, stopTelemetry, err := server.New(server.Config{
				Engine:   e,
				Chat:     newDispatcher(cfg),
				BasePath: basePath,
				Auth:     authCfg,
			})
			if err != nil {
				return err
			}
			defer stopTelemetry()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Problinx API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("problinx")
	}
	return cfg, nil
}

// newDispatcher wires the completion backend when chat is enabled and
// the key is present; the rule-based fallback covers everything else.
func newDispatcher(cfg *config.Config) *chat.Dispatcher {
	d := &chat.Dispatcher{}
	if cfg == nil || !cfg.Chat.Enabled {
		return d
	}
	apiKey := os.Getenv(cfg.Chat.APIKeyEnv)
	if apiKey == "" {
		return d
	}
	d.Completer = &gemini.Client{
		APIKey:  apiKey,
		Model:   cfg.Chat.Model,
		BaseURL: cfg.Chat.BaseURL,
	}
	return d
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
