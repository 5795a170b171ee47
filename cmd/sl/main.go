package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"sprintsync/internal/app"
	"sprintsync/internal/config"
	"sprintsync/internal/db"
	"sprintsync/internal/domain"
	"sprintsync/internal/engine"
	"sprintsync/internal/logging"
	"sprintsync/internal/server"
	"sprintsync/internal/telemetry"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Sprintsync CLI",
	Long: `Sprintsync keeps sprint backlogs and task logs for small teams.
- Project: a named board; items belong to exactly one project.
- Item: a backlog entry, sprint task, draft or personal note with progress, priority, status and category.
- Slug: the short handle every item gets, {project}-S{sprint}-{token}.
- Plugins: optional hooks (zulip, webhook) that mirror every change elsewhere.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level := cfg.Log.Level
		if viper.GetBool("verbose") {
			level = "debug"
		}
		if err := logging.Setup(os.Stderr, level, cfg.Log.Format); err != nil {
			return err
		}
		return telemetry.Init(cmd.Context(), cfg.Telemetry, version)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPRINTSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.String("config", "", "config file (default <workspace>/sprintsync.yml)")
	pf.Bool("json", false, "output JSON")
	pf.String("actor-id", engine.DefaultActor, "acting account")
	pf.BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "verbose"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

// loadConfig reads the workspace config and overlays SPRINTSYNC_* env
// values for the secrets and endpoints.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	var (
		cfg *config.Config
		err error
	)
	if p := viper.GetString("config"); p != "" {
		cfg, err = config.FromFile(p)
	} else {
		cfg, err = config.LoadOptional(workspace)
	}
	if err != nil {
		return nil, err
	}
	cfg.Store.Workspace = workspace
	overlay := map[string]*string{
		"server.addr":       &cfg.Server.Addr,
		"server.jwt_secret": &cfg.Server.JWTSecret,
		"zulip.api_url":     &cfg.Zulip.APIURL,
		"zulip.email":       &cfg.Zulip.Email,
		"zulip.api_key":     &cfg.Zulip.APIKey,
		"log.level":         &cfg.Log.Level,
		"log.format":        &cfg.Log.Format,
	}
	for key, dst := range overlay {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
	if v := viper.GetString("plugins"); v != "" {
		cfg.Plugins.Enabled = strings.Split(v, ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func actor() string {
	return viper.GetString("actor-id")
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				log.Info().Str("path", path).Msg("wrote default config")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("workspace ready at %s\n", db.Path(workspace))
				return nil
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var p domain.Project
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateProject(ctx, p, actor())
				if err != nil {
					return err
				}
				return printProjects(created)
			})
		},
	}
	cmd.Flags().StringVar(&p.Slug, "slug", "", "project slug")
	cmd.Flags().StringVar(&p.Name, "name", "", "display name")
	cmd.Flags().StringVar(&p.Description, "description", "", "description")
	cmd.Flags().BoolVar(&p.Pin, "pin", false, "pin the project")
	cmd.Flags().StringVar(&p.OwnerID, "owner", "", "owner account (defaults to the actor)")
	cmd.Flags().StringVar(&p.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&p.EndDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&p.SprintWeeks, "sprint-weeks", 0, "sprint length in weeks")
	_ = cmd.MarkFlagRequired("slug")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ps, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printProjects(ps...)
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug|id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var (
		name, desc, owner, start, end string
		pin                           bool
		weeks                         int
	)
	cmd := &cobra.Command{
		Use:   "update <slug|id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch engine.ProjectPatch
			f := cmd.Flags()
			if f.Changed("name") {
				patch.Name = &name
			}
			if f.Changed("description") {
				patch.Description = &desc
			}
			if f.Changed("owner") {
				patch.OwnerID = &owner
			}
			if f.Changed("start") {
				patch.StartDate = &start
			}
			if f.Changed("end") {
				patch.EndDate = &end
			}
			if f.Changed("pin") {
				patch.Pin = &pin
			}
			if f.Changed("sprint-weeks") {
				patch.SprintWeeks = &weeks
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, args[0], patch, actor())
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&owner, "owner", "", "owner account")
	cmd.Flags().StringVar(&start, "start", "", "start date")
	cmd.Flags().StringVar(&end, "end", "", "end date")
	cmd.Flags().BoolVar(&pin, "pin", false, "pin the project")
	cmd.Flags().IntVar(&weeks, "sprint-weeks", 0, "sprint length in weeks")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <slug|id>",
		Short: "Delete an empty project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.DeleteProject(ctx, args[0], actor())
				if err != nil {
					return err
				}
				fmt.Printf("deleted project %s\n", p.Slug)
				return nil
			})
		},
	}
}

func itemCmd() *cobra.Command {
	it := &cobra.Command{Use: "item", Short: "Manage backlog and sprint items"}
	it.AddCommand(itemCreateCmd())
	it.AddCommand(itemListCmd())
	it.AddCommand(itemListingCmd())
	it.AddCommand(itemShowCmd())
	it.AddCommand(itemUpdateCmd())
	it.AddCommand(itemDeleteCmd())
	it.AddCommand(itemStepCmd())
	it.AddCommand(itemCircleCmd())
	it.AddCommand(itemSwitchCmd())
	it.AddCommand(itemAuditsCmd())
	return it
}

type itemFlags struct {
	title, desc, project, progress, priority, status, typ, category string
	beg, end, due, owner, assignee                                  string
	sprint, order, points                                           int
	est                                                             float64
	labels                                                          []string
}

func (f *itemFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.title, "title", "", "title")
	fs.StringVar(&f.desc, "description", "", "description")
	fs.StringVar(&f.project, "project", "", "project slug or id")
	fs.StringVar(&f.progress, "progress", "", "progress (empty, in_progress, half_way, ready) or its glyph")
	fs.StringVar(&f.priority, "priority", "", "priority (low, med, hi) or its glyph")
	fs.StringVar(&f.status, "status", "", "status or its glyph")
	fs.StringVar(&f.typ, "type", "", "item type (backlog, task, draft, self)")
	fs.StringVar(&f.category, "category", "", "category or its glyph")
	fs.StringVar(&f.beg, "beg", "", "begin date (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "end date (YYYY-MM-DD)")
	fs.StringVar(&f.due, "due", "", "due date (YYYY-MM-DD); derived when empty")
	fs.StringVar(&f.owner, "owner", "", "owner account")
	fs.StringVar(&f.assignee, "assignee", "", "assignee account")
	fs.IntVar(&f.sprint, "sprint", 0, "sprint number")
	fs.IntVar(&f.order, "order", 0, "sort order")
	fs.IntVar(&f.points, "points", 0, "story points")
	fs.Float64Var(&f.est, "est-days", 0, "estimated days")
	fs.StringSliceVar(&f.labels, "label", nil, "label (repeatable)")
}

// parseAxes accepts either value names or glyphs for the enumerated fields.
func (f *itemFlags) parseAxes() (pg domain.Progress, pr domain.Priority, st domain.Status, ty domain.ItemType, ca domain.Category, err error) {
	if f.progress != "" {
		if pg, err = domain.Progresses.Parse(f.progress); err != nil {
			return
		}
	}
	if f.priority != "" {
		if pr, err = domain.Priorities.Parse(f.priority); err != nil {
			return
		}
	}
	if f.status != "" {
		if st, err = domain.Statuses.Parse(f.status); err != nil {
			return
		}
	}
	if f.typ != "" {
		if ty, err = domain.ItemTypes.Parse(f.typ); err != nil {
			return
		}
	}
	if f.category != "" {
		ca, err = domain.Categories.Parse(f.category)
	}
	return
}

func itemCreateCmd() *cobra.Command {
	var f itemFlags
	var slug string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an item",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, pr, st, ty, ca, err := f.parseAxes()
			if err != nil {
				return err
			}
			w := domain.WorkItem{
				Slug:         slug,
				Title:        f.title,
				Description:  f.desc,
				ProjectSlug:  f.project,
				SprintNumber: f.sprint,
				Progress:     pg,
				Priority:     pr,
				Status:       st,
				Type:         ty,
				Category:     ca,
				Order:        f.order,
				Points:       f.points,
				EstDays:      f.est,
				BegDate:      f.beg,
				EndDate:      f.end,
				DueDate:      f.due,
				Labels:       f.labels,
				OwnerID:      f.owner,
				AssigneeID:   f.assignee,
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateItem(ctx, w, actor())
				if err != nil {
					return err
				}
				return printItems(created)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&slug, "slug", "", "explicit slug")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func itemListCmd() *cobra.Command {
	var (
		project, typ, status, assignee string
		sprint, limit, offset          int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := domain.ItemFilters{
				ProjectSlug: project,
				Type:        domain.ItemType(typ),
				Status:      domain.Status(status),
				AssigneeID:  assignee,
				Limit:       limit,
				Offset:      offset,
			}
			if cmd.Flags().Changed("sprint") {
				filters.SprintNumber = &sprint
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListItems(ctx, filters)
				if err != nil {
					return err
				}
				return printItems(items...)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project slug or id")
	cmd.Flags().StringVar(&typ, "type", "", "type filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&sprint, "sprint", 0, "sprint filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func itemListingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listing <project>_<type>",
		Short: "List one project's items of one type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, typ, err := engine.ParseProjectType(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListItems(ctx, domain.ItemFilters{ProjectSlug: project, Type: typ})
				if err != nil {
					return err
				}
				return printItems(items...)
			})
		},
	}
}

// lookupItem resolves an id, falling back to a slug.
func lookupItem(ctx context.Context, e engine.Engine, ref string) (domain.WorkItem, error) {
	w, err := e.GetItem(ctx, ref)
	var nf domain.NotFoundError
	if errors.As(err, &nf) {
		return e.GetItemBySlug(ctx, ref)
	}
	return w, err
}

func itemShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|slug>",
		Short: "Show an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := lookupItem(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
}

func itemUpdateCmd() *cobra.Command {
	var f itemFlags
	cmd := &cobra.Command{
		Use:   "update <id|slug>",
		Short: "Update an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, pr, st, ty, ca, err := f.parseAxes()
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			var patch engine.ItemPatch
			str := map[string]**string{
				"title": &patch.Title, "description": &patch.Description, "project": &patch.ProjectSlug,
				"beg": &patch.BegDate, "end": &patch.EndDate, "due": &patch.DueDate,
				"owner": &patch.OwnerID, "assignee": &patch.AssigneeID,
			}
			vals := map[string]*string{
				"title": &f.title, "description": &f.desc, "project": &f.project,
				"beg": &f.beg, "end": &f.end, "due": &f.due,
				"owner": &f.owner, "assignee": &f.assignee,
			}
			for name, dst := range str {
				if fs.Changed(name) {
					*dst = vals[name]
				}
			}
			if fs.Changed("progress") {
				patch.Progress = &pg
			}
			if fs.Changed("priority") {
				patch.Priority = &pr
			}
			if fs.Changed("status") {
				patch.Status = &st
			}
			if fs.Changed("type") {
				patch.Type = &ty
			}
			if fs.Changed("category") {
				patch.Category = &ca
			}
			if fs.Changed("sprint") {
				patch.SprintNumber = &f.sprint
			}
			if fs.Changed("order") {
				patch.Order = &f.order
			}
			if fs.Changed("points") {
				patch.Points = &f.points
			}
			if fs.Changed("est-days") {
				patch.EstDays = &f.est
			}
			if fs.Changed("label") {
				patch.Labels = &f.labels
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := lookupItem(ctx, e, args[0])
				if err != nil {
					return err
				}
				updated, err := e.UpdateItem(ctx, w.ID, patch, actor())
				if err != nil {
					return err
				}
				return printItems(updated)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func itemDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|slug>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := lookupItem(ctx, e, args[0])
				if err != nil {
					return err
				}
				if _, err := e.DeleteItem(ctx, w.ID, actor()); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", w.Slug)
				return nil
			})
		},
	}
}

func itemStepCmd() *cobra.Command {
	var delta int
	cmd := &cobra.Command{
		Use:   "step <slug> <axis>",
		Short: "Move progress, priority, status or type by --delta, holding at the ends",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis, err := domain.ParseAxisName(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.StepAxis(ctx, args[0], axis, delta, actor())
				if err != nil {
					return err
				}
				return printItems(w)
			})
		},
	}
	cmd.Flags().IntVarP(&delta, "delta", "d", 1, "signed step")
	return cmd
}

func itemCircleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "circle <slug> <axis>",
		Short: "Advance one axis, wrapping past the end",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis, err := domain.ParseAxisName(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CircleAxis(ctx, args[0], axis, actor())
				if err != nil {
					return err
				}
				return printItems(w)
			})
		},
	}
}

func itemSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <slug> <type>",
		Short: "Move an item to another type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := domain.ItemTypes.Parse(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.SwitchType(ctx, args[0], t, actor())
				if err != nil {
					return err
				}
				return printItems(w)
			})
		},
	}
}

func itemAuditsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audits <id|slug>",
		Short: "Show the field change history of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := lookupItem(ctx, e, args[0])
				if err != nil {
					return err
				}
				as, err := e.ItemAudits(ctx, w.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(as)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Field", "Old", "New", "By"})
				for _, a := range as {
					tw.AppendRow(table.Row{a.CreatedAt, a.Field, a.OldValue, a.NewValue, a.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func accountCmd() *cobra.Command {
	acc := &cobra.Command{Use: "account", Short: "Manage accounts"}
	var name, email string
	ensure := &cobra.Command{
		Use:   "ensure <id>",
		Short: "Create or refresh an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.EnsureAccount(ctx, args[0], name, email)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	ensure.Flags().StringVar(&name, "name", "", "display name")
	ensure.Flags().StringVar(&email, "email", "", "email")
	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				as, err := e.ListAccounts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(as)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email"})
				for _, a := range as {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	acc.AddCommand(ensure, list, keyCmd())
	return acc
}

func keyCmd() *cobra.Command {
	k := &cobra.Command{Use: "key", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create <account>",
		Short: "Issue an API key; the key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, args[0], name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "account_id": key.AccountID, "key": plain})
				}
				fmt.Printf("%s\t%s\n", key.ID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	list := &cobra.Command{
		Use:   "list [account]",
		Short: "List API keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account := ""
			if len(args) == 1 {
				account = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, account)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Account", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.AccountID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0])
			})
		},
	}
	k.AddCommand(create, list, revoke)
	return k
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			c.Server.JWTSecret = redact(c.Server.JWTSecret)
			c.Zulip.APIKey = redact(c.Zulip.APIKey)
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	var (
		limit         int
		project, kind string
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evs, err := e.RecentEvents(ctx, limit, project, kind, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Project", "Entity", "Actor"})
				for _, ev := range evs {
					tw.AppendRow(table.Row{ev.TS, ev.Type, ev.ProjectSlug, ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	tail.Flags().StringVar(&project, "project", "", "project filter")
	tail.Flags().StringVar(&kind, "kind", "", "entity kind filter (item, project)")
	l.AddCommand(tail)
	return l
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Version:  version,
					Logger:   logging.Component("http"),
					Auth: server.AuthConfig{
						JWTSecret:        a.Config.Server.JWTSecret,
						AllowActorHeader: a.Config.Server.AllowActorHeader,
						Logger:           logging.Component("auth"),
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					log.Info().Str("addr", addr).Str("base_path", basePath).Strs("plugins", a.Plugins.Names()).Msg("serving sprintsync API")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(sctx)
				})
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject, name, email string
		ttl                  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret (or SPRINTSYNC_SERVER_JWT_SECRET) is required")
			}
			if subject == "" {
				subject = actor()
			}
			now := time.Now()
			claims := server.Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   subject,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
				Name:  name,
				Email: email,
			}
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Server.JWTSecret))
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "account id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func printItems(items ...domain.WorkItem) error {
	if viper.GetBool("json") {
		if len(items) == 1 {
			return printJSON(items[0])
		}
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Slug", "", "", "", "Title", "Type", "Due", "Assignee"})
	for _, w := range items {
		tw.AppendRow(table.Row{
			w.Slug,
			domain.Statuses.Glyph(w.Status),
			domain.Priorities.Glyph(w.Priority),
			domain.Progresses.Glyph(w.Progress),
			w.Title,
			w.Type,
			w.DueDate,
			w.AssigneeID,
		})
	}
	tw.Render()
	return nil
}

func printProjects(ps ...domain.Project) error {
	if viper.GetBool("json") {
		if len(ps) == 1 {
			return printJSON(ps[0])
		}
		return printJSON(ps)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Slug", "Name", "Pin", "Owner", "Weeks", "Plugins"})
	for _, p := range ps {
		pin := ""
		if p.Pin {
			pin = "📌"
		}
		tw.AppendRow(table.Row{p.Slug, p.Name, pin, p.OwnerID, p.SprintWeeks, len(p.PluginMeta)})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
