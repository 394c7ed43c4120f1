package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/app"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/config"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/operations"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/prd"
	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ppo",
	Short: "Project bootstrap orchestrator",
	Long: `ppo turns a Project Requirements Document into a fully provisioned project:
a work breakdown (epics, features, user stories, technical stories, sprints),
a work-tracking project with linked work items and iterations, and low-code
platform infrastructure (environments, publisher, solution, data model).

Runs are asynchronous. 'ppo project create' queues an operation; poll it with
'ppo project status' or watch the event log with 'ppo log tail'.`,
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
	viper.SetEnvPrefix("PPO")
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
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(prdCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default ppo.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage project bootstrap operations"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCancelCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, tmpl, prdFile, description string
	var dryRun, wait bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Queue a project bootstrap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Context) error {
				opts := operations.StartOptions{
					ProjectName: name,
					Description: description,
					Template:    tmpl,
					DryRun:      dryRun,
					ActorID:     viper.GetString("actor-id"),
				}
				if prdFile != "" {
					raw, err := os.ReadFile(prdFile)
					if err != nil {
						return err
					}
					opts.RawPRD = string(raw)
				}
				op, err := a.Service.Start(ctx, opts)
				if err != nil {
					return err
				}
				if wait {
					a.Service.Wait()
					op, _, err = a.Service.Get(ctx, op.ID)
					if err != nil {
						return err
					}
				}
				return printJSONOrTable(op)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (overrides the PRD's product name)")
	cmd.Flags().StringVar(&tmpl, "template", "", "project template (default from ppo.yml)")
	cmd.Flags().StringVar(&prdFile, "prd", "", "path to a PRD file (JSON, YAML, or markdown)")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate external systems")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the run finishes")
	return cmd
}

func projectStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <operation-id>",
		Short: "Show an operation and its phase log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Context) error {
				op, phases, err := a.Service.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"operation": op, "phases": phases})
				}
				t := newTable()
				t.AppendHeader(table.Row{"FIELD", "VALUE"})
				t.AppendRow(table.Row{"id", op.ID})
				t.AppendRow(table.Row{"project", op.ProjectName})
				t.AppendRow(table.Row{"status", op.Status})
				t.AppendRow(table.Row{"dry_run", op.DryRun})
				t.AppendRow(table.Row{"canceled", op.Canceled})
				if op.Error != "" {
					t.AppendRow(table.Row{"error", op.Error})
				}
				t.Render()
				if len(phases) > 0 {
					pt := newTable()
					pt.AppendHeader(table.Row{"SEQ", "PHASE", "STATUS", "ERROR"})
					for _, p := range phases {
						pt.AppendRow(table.Row{p.Seq, p.Name, p.Status, p.Error})
					}
					pt.Render()
				}
				return nil
			})
		},
	}
	return cmd
}

func projectListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Context) error {
				items, err := a.Service.List(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable()
				t.AppendHeader(table.Row{"ID", "PROJECT", "STATUS", "DRY RUN", "CREATED"})
				for _, op := range items {
					t.AppendRow(table.Row{op.ID, op.ProjectName, op.Status, op.DryRun, op.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max operations")
	return cmd
}

func projectCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <operation-id>",
		Short: "Request cancellation of an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Context) error {
				if err := a.Service.Cancel(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				op, _, err := a.Service.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(op)
			})
		},
	}
	return cmd
}

func templatesCmd() *cobra.Command {
	tc := &cobra.Command{Use: "templates", Short: "Project templates"}
	tc.AddCommand(templatesListCmd())
	tc.AddCommand(templatesShowCmd())
	return tc
}

func templatesListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Context) error {
				items, err := a.Catalog.List(category)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable()
				t.AppendHeader(table.Row{"NAME", "CATEGORY", "DESCRIPTION"})
				for _, tmpl := range items {
					t.AppendRow(table.Row{tmpl.Name, tmpl.Category, tmpl.Description})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	return cmd
}

func templatesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Context) error {
				tmpl, err := a.Catalog.Get(args[0])
				if err != nil {
					return err
				}
				return printJSON(tmpl)
			})
		},
	}
	return cmd
}

func prdCmd() *cobra.Command {
	pc := &cobra.Command{Use: "prd", Short: "PRD tooling"}
	pc.AddCommand(prdValidateCmd())
	return pc
}

func prdValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and validate a PRD file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			doc, err := prd.Parse(string(raw))
			if err != nil {
				return printJSON(prd.Result{Valid: false, Errors: []string{err.Error()}})
			}
			return printJSON(prd.Validate(doc))
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "PRD file path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func logCmd() *cobra.Command {
	lc := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	lc.AddCommand(logTailCmd())
	return lc
}

func logTailCmd() *cobra.Command {
	var n int
	var operationID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.Context) error {
				latest, err := a.Repo.LatestEventID(ctx, operationID)
				if err != nil {
					return err
				}
				after := latest - int64(n)
				if after < 0 {
					after = 0
				}
				events, err := a.Repo.EventsAfter(ctx, n, after, operationID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				t := newTable()
				t.AppendHeader(table.Row{"ID", "TS", "TYPE", "OPERATION", "ACTOR"})
				for _, evt := range events {
					t.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.OperationID, evt.ActorID})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&operationID, "operation", "", "operation id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"), log.Default())
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			jwtSecret := a.Config.Server.JWTSecret
			if env := os.Getenv("PPO_JWT_SECRET"); env != "" {
				jwtSecret = env
			}
			handler, err := server.New(server.Config{
				Service:  a.Service,
				Catalog:  a.Catalog,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret: jwtSecret,
					APIKeys:   a.Config.Server.APIKeys,
				},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(a.Repo, a.Config.Webhooks)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving orchestration API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from ppo.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from ppo.yml)")
	return cmd
}

// --- helpers ---

func withApp(fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(viper.GetString("workspace"), log.New(os.Stderr, "", log.LstdFlags))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
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
