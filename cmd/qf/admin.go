package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualflow/internal/app"
	"qualflow/internal/domain"
	"qualflow/internal/engine/auth"
	"qualflow/internal/policy"
	"qualflow/internal/repo"
	"qualflow/internal/server"
	"qualflow/internal/validate"
)

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actor", Short: "Register actors and issue credentials"}
	cmd.AddCommand(actorAddCmd())
	cmd.AddCommand(actorListCmd())
	cmd.AddCommand(actorRoleCmd())
	cmd.AddCommand(actorTokenCmd())
	cmd.AddCommand(actorKeyCmd())
	return cmd
}

func actorAddCmd() *cobra.Command {
	var id, name, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an actor with a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a := domain.Actor{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name), Role: r}
				if err := ws.Repo.InsertActor(ctx, a, createdBy()); err != nil {
					return err
				}
				fmt.Printf("registered %s as %s\n", a.ID, ws.Config.DisplayName(a.Role))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id")
	cmd.Flags().StringVar(&name, "name", "", "display name recorded on workflow stages")
	cmd.Flags().StringVar(&role, "role", "", "one of "+joinOrNone(domain.Roles))
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r domain.Role
			if role != "" {
				parsed, err := auth.ParseRole(role)
				if err != nil {
					return err
				}
				r = parsed
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actors, err := ws.Repo.ListActors(ctx, r)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Created"})
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, a.Name, ws.Config.DisplayName(a.Role), a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func actorRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <id> <role>",
		Short: "Change an actor's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := auth.ParseRole(args[1])
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return ws.Repo.SetActorRole(ctx, args[0], r, createdBy())
			})
		},
	}
}

func actorTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <id>",
		Short: "Mint a JWT for an actor (uses QUALFLOW_JWT_SECRET)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("QUALFLOW_JWT_SECRET is required")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actor, err := ws.Actors.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				token, err := server.SignToken(secret, actor, ttl)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func actorKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create <actor-id>",
		Short: "Create an API key; the secret is shown once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if _, err := ws.Actors.Resolve(ctx, args[0]); err != nil {
					return err
				}
				key, secret, err := ws.Repo.CreateAPIKey(ctx, args[0], name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
				}
				fmt.Printf("%s %s\n", key.ID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	list := &cobra.Command{
		Use:   "list [actor-id]",
		Short: "List API keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := ""
			if len(args) == 1 {
				actorID = args[0]
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				keys, err := ws.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return ws.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	cmd.AddCommand(create, list, revoke)
	return cmd
}

func registryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "registry", Short: "Published qualifications"}
	var f repo.RegistryFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListRegistry(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Sector", "Level", "Year", "Version", "QDF"})
				for _, q := range items {
					tw.AppendRow(table.Row{q.ID, q.Title, q.Sector, q.NVQFLevel, q.ApprovalYear, q.Version, q.QDFID})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.Sector, "sector", "", "sector filter")
	list.Flags().StringVarP(&f.Query, "query", "q", "", "title substring")

	var filePath string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Import existing qualifications from a YAML/JSON list",
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []domain.Qualification
			if err := decodeFile(filePath, &items); err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				for _, q := range items {
					if q.ID == "" || strings.TrimSpace(q.Title) == "" {
						return fmt.Errorf("qualification entries need id and title")
					}
					if q.Version == "" {
						q.Version = ws.Config.Registry.InitialVersion
					}
					if err := ws.Repo.InsertQualification(ctx, q); err != nil {
						return fmt.Errorf("import %s: %w", q.ID, err)
					}
				}
				fmt.Printf("imported %d qualifications\n", len(items))
				return nil
			})
		},
	}
	imp.Flags().StringVar(&filePath, "file", "", "YAML or JSON list of qualifications")
	_ = imp.MarkFlagRequired("file")
	show := &cobra.Command{
		Use:   "show <qdf-id>",
		Short: "Show the registry entry published from a QDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				q, err := ws.Repo.GetQualificationByQDF(ctx, args[0])
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("%s has not been published", args[0])
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(q)
				}
				tw := newTable()
				tw.AppendRows([]table.Row{
					{"ID", q.ID},
					{"Title", q.Title},
					{"Sector", q.Sector},
					{"NVQF level", q.NVQFLevel},
					{"Approved", q.ApprovalYear},
					{"Version", q.Version},
				})
				tw.Render()
				return nil
			})
		},
	}
	cmd.AddCommand(list, show, imp)
	return cmd
}

func titleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "title", Short: "Title checks"}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <title>",
		Short: "Report whether a title duplicates an existing QDF or qualification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				corpus, err := ws.Repo.Titles(ctx)
				if err != nil {
					return err
				}
				dup := validate.IsDuplicateTitle(args[0], corpus)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"title": args[0], "normalized": validate.NormalizeTitle(args[0]), "duplicate": dup})
				}
				if dup {
					fmt.Println("duplicate: a qualification with this title already exists")
				} else {
					fmt.Println("ok: no matching title")
				}
				return nil
			})
		},
	})
	return cmd
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Role and status permissions"}
	var role string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the permission matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.Role
			if role != "" {
				r, err := auth.ParseRole(role)
				if err != nil {
					return err
				}
				filter = r
			}
			rows := []policy.Matrix{}
			for _, m := range policy.All() {
				if filter != "" && m.Role != filter {
					continue
				}
				if len(m.Actions) == 0 && len(m.Edits) == 0 {
					continue
				}
				rows = append(rows, m)
			}
			if viper.GetBool("json") {
				return printJSON(rows)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Role", "Status", "Actions", "Edits"})
			for _, m := range rows {
				tw.AppendRow(table.Row{m.Role, m.Status.Label(), joinOrNone(m.Actions), joinOrNone(m.Edits)})
			}
			tw.Render()
			return nil
		},
	}
	show.Flags().StringVar(&role, "role", "", "role filter")
	cmd.AddCommand(show)
	return cmd
}

// createdBy names who made an administrative change from the CLI.
func createdBy() string {
	if id := strings.TrimSpace(viper.GetString("actor-id")); id != "" {
		return id
	}
	return "cli"
}
