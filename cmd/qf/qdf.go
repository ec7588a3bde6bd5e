package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualflow/internal/app"
	"qualflow/internal/domain"
	"qualflow/internal/engine"
	"qualflow/internal/policy"
	"qualflow/internal/processflow"
	"qualflow/internal/repo"
)

func qdfCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "qdf", Short: "Qualification Development Forms"}
	cmd.AddCommand(qdfNewCmd())
	cmd.AddCommand(qdfListCmd())
	cmd.AddCommand(qdfShowCmd())
	cmd.AddCommand(qdfActionsCmd())
	cmd.AddCommand(qdfFlowCmd())
	cmd.AddCommand(qdfActionCmd("submit", "Resubmit a rejected QDF", domain.ActionSubmit))
	cmd.AddCommand(qdfApproveCmd())
	cmd.AddCommand(qdfRejectCmd())
	cmd.AddCommand(qdfActionCmd("launch", "Launch development with the nominated QDC", domain.ActionLaunchDevelopment))
	cmd.AddCommand(qdfActionCmd("hold", "Put QDC nomination on hold", domain.ActionHold))
	cmd.AddCommand(qdfActionCmd("final-approve", "Grant final approval and publish to the registry", domain.ActionFinalApprove))
	cmd.AddCommand(qdfAdvanceCmd())
	cmd.AddCommand(qdfEditCmd("edit-intent", "Replace the QDF-1 intent section from a file", func() (engine.Command, any) {
		c := &engine.IntentUpdate{}
		return c, &c.Intent
	}))
	cmd.AddCommand(qdfEditCmd("edit-review", "Replace the QDF-2 review section from a file", func() (engine.Command, any) {
		c := &engine.ReviewUpdate{}
		return c, &c.Review
	}))
	cmd.AddCommand(qdfEditCmd("edit-nomination", "Replace the QDC member list from a file", func() (engine.Command, any) {
		c := &engine.NominationUpdate{}
		return c, &c.Members
	}))
	cmd.AddCommand(qdfEditCmd("edit-checklist", "Record the QA checklist from a file", func() (engine.Command, any) {
		c := &engine.ChecklistUpdate{}
		return c, &c.Checklist
	}))
	return cmd
}

func qdfNewCmd() *cobra.Command {
	var in domain.Intent
	var filePath string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Submit a new QDF-1",
		Long:  "Submit a new QDF-1 from flags or a YAML/JSON file. Missing fields are reported as warnings unless strict_payloads is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath != "" {
				var fromFile domain.Intent
				if err := decodeFile(filePath, &fromFile); err != nil {
					return err
				}
				mergeIntent(&fromFile, in)
				in = fromFile
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actor, err := currentActor(ctx, ws)
				if err != nil {
					return err
				}
				out, err := ws.Engine.Apply(ctx, engine.ApplyRequest{
					QDF:    domain.QDF{Intent: in, Status: domain.StatusDraft},
					Action: domain.ActionSubmit,
					Actor:  actor,
				})
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&filePath, "file", "", "YAML or JSON intent document")
	f.StringVar(&in.Title, "title", "", "qualification title")
	f.StringVar(&in.Sector, "sector", "", "sector")
	f.IntVar(&in.Level, "level", 0, "NVQF level (1-8)")
	f.StringVar(&in.OrganizationName, "org", "", "proposing organization")
	f.StringVar(&in.OrganizationType, "org-type", "", "organization type")
	f.StringVar(&in.OrganizationAddress, "org-address", "", "organization address")
	f.StringVar(&in.ContactPersonName, "contact", "", "contact person name")
	f.StringVar(&in.ContactPersonDesignation, "contact-designation", "", "contact person designation")
	f.StringVar(&in.ContactPersonPhone, "contact-phone", "", "contact person phone")
	f.StringVar(&in.ContactPersonEmail, "contact-email", "", "contact person email")
	f.StringVar(&in.Description, "description", "", "qualification description")
	f.StringVar(&in.JustificationSummary, "justification", "", "justification summary")
	f.StringVar(&in.JustificationSupport, "justification-support", "", "supporting evidence")
	f.StringVar(&in.AuthorizedPerson, "authorized-person", "", "authorized signatory")
	return cmd
}

// mergeIntent overlays non-empty flag values onto a file-loaded intent.
func mergeIntent(dst *domain.Intent, flags domain.Intent) {
	set := func(d *string, v string) {
		if v != "" {
			*d = v
		}
	}
	set(&dst.Title, flags.Title)
	set(&dst.Sector, flags.Sector)
	set(&dst.OrganizationName, flags.OrganizationName)
	set(&dst.OrganizationType, flags.OrganizationType)
	set(&dst.OrganizationAddress, flags.OrganizationAddress)
	set(&dst.ContactPersonName, flags.ContactPersonName)
	set(&dst.ContactPersonDesignation, flags.ContactPersonDesignation)
	set(&dst.ContactPersonPhone, flags.ContactPersonPhone)
	set(&dst.ContactPersonEmail, flags.ContactPersonEmail)
	set(&dst.Description, flags.Description)
	set(&dst.JustificationSummary, flags.JustificationSummary)
	set(&dst.JustificationSupport, flags.JustificationSupport)
	set(&dst.AuthorizedPerson, flags.AuthorizedPerson)
	if flags.Level != 0 {
		dst.Level = flags.Level
	}
}

func qdfListCmd() *cobra.Command {
	var f repo.QDFFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List QDFs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListQDFs(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Sector", "Level", "Status", "Updated", "Ver"})
				for _, q := range items {
					tw.AppendRow(table.Row{q.ID, q.Title, q.Sector, q.Level, q.Status.Label(), q.LastUpdated, q.Version})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Sector, "sector", "", "sector filter")
	cmd.Flags().StringVar(&f.SubmittedBy, "submitted-by", "", "submitter filter")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "title substring")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func qdfShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a QDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				q, err := ws.Engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(q)
				}
				printQDF(q)
				return nil
			})
		},
	}
}

func qdfActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <id>",
		Short: "Actions and edits the acting actor may perform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actor, err := currentActor(ctx, ws)
				if err != nil {
					return err
				}
				q, err := ws.Engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out := policy.Matrix{
					Role:    actor.Role,
					Status:  q.Status,
					Actions: policy.PermittedActions(actor.Role, q.Status),
					Edits:   policy.PermittedEdits(actor.Role, q.Status),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("%s (%s) on %s [%s]\n", actor.ID, ws.Config.DisplayName(actor.Role), q.ID, q.Status.Label())
				fmt.Printf("  actions: %s\n", joinOrNone(out.Actions))
				fmt.Printf("  edits:   %s\n", joinOrNone(out.Edits))
				return nil
			})
		},
	}
}

func qdfFlowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flow <id>",
		Short: "Show the process flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				q, err := ws.Engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				stages := processflow.Project(q.WorkflowHistory)
				if viper.GetBool("json") {
					return printJSON(stages)
				}
				p := processflow.Summarize(q.WorkflowHistory)
				fmt.Printf("%s: %d/%d stages complete\n", q.ID, p.Completed, p.Total)
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Stage", "Status", "By", "When", "Comments"})
				for i, s := range stages {
					tw.AppendRow(table.Row{i + 1, s.Stage, s.Status, s.Actor, s.Timestamp, s.Comments})
				}
				tw.Render()
				return nil
			})
		},
	}
}

type actionFlags struct {
	payload  engine.Payload
	expected int64
}

func (a *actionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.payload.Comments, "comments", "", "comments recorded on the stage")
	cmd.Flags().Int64Var(&a.expected, "expected-version", 0, "fail unless the QDF is at this version")
}

func runAction(cmd *cobra.Command, id string, action domain.Action, a actionFlags) error {
	return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
		actor, err := currentActor(ctx, ws)
		if err != nil {
			return err
		}
		out, err := ws.Engine.ApplyByID(ctx, id, action, actor, a.payload, a.expected)
		if err != nil {
			return err
		}
		return printOutcome(out)
	})
}

func qdfActionCmd(use, short string, action domain.Action) *cobra.Command {
	var a actionFlags
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], action, a)
		},
	}
	a.bind(cmd)
	return cmd
}

func qdfApproveCmd() *cobra.Command {
	var a actionFlags
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Accept a submitted QDF-1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], domain.ActionApprove, a)
		},
	}
	a.bind(cmd)
	cmd.Flags().StringVar(&a.payload.SubmissionDueDate, "due", "", "QDF-3 submission due date (YYYY-MM-DD)")
	return cmd
}

func qdfRejectCmd() *cobra.Command {
	var a actionFlags
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Return a submitted QDF-1 to the proposing organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, args[0], domain.ActionReject, a)
		},
	}
	a.bind(cmd)
	cmd.Flags().StringVar(&a.payload.ReasonsForRejection, "reason", "", "reasons for rejection")
	return cmd
}

func qdfAdvanceCmd() *cobra.Command {
	var a actionFlags
	cmd := &cobra.Command{
		Use:   "advance <id> <action>",
		Short: "Apply any workflow action by name",
		Long:  "Apply any workflow action by name, including the development-phase actions: " + joinOrNone(domain.Actions) + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := domain.Action(args[1])
			if !action.Valid() {
				return fmt.Errorf("unknown action %q", args[1])
			}
			return runAction(cmd, args[0], action, a)
		},
	}
	a.bind(cmd)
	cmd.Flags().StringVar(&a.payload.SubmissionDueDate, "due", "", "submission due date (approve only)")
	cmd.Flags().StringVar(&a.payload.ReasonsForRejection, "reason", "", "reasons for rejection (reject only)")
	return cmd
}

func qdfEditCmd(use, short string, build func() (engine.Command, any)) *cobra.Command {
	var filePath string
	var expected int64
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, target := build()
			if err := decodeFile(filePath, target); err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				actor, err := currentActor(ctx, ws)
				if err != nil {
					return err
				}
				out, err := ws.Engine.Edit(ctx, engine.EditRequest{ID: args[0], Actor: actor, ExpectedVersion: expected, Command: c})
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "YAML or JSON document")
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "fail unless the QDF is at this version")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printOutcome(out engine.Outcome) error {
	if viper.GetBool("json") {
		return printJSON(out)
	}
	q := out.QDF
	fmt.Printf("%s v%d: %s\n", q.ID, q.Version, q.Status.Label())
	for _, w := range out.Warnings {
		if w.Field != "" {
			fmt.Printf("  warning: %s %s\n", w.Field, w.Message)
		} else {
			fmt.Printf("  warning: %s\n", w.Message)
		}
	}
	if out.Published != nil {
		fmt.Printf("  published %s (version %s, %d)\n", out.Published.ID, out.Published.Version, out.Published.ApprovalYear)
	}
	fmt.Printf("  next: %s\n", joinOrNone(out.Permitted))
	return nil
}

func printQDF(q domain.QDF) {
	tw := newTable()
	tw.AppendRows([]table.Row{
		{"ID", q.ID},
		{"Version", q.Version},
		{"Title", q.Title},
		{"Sector", q.Sector},
		{"Level", q.Level},
		{"Organization", q.OrganizationName},
		{"Contact", strings.TrimSpace(q.ContactPersonName + " " + q.ContactPersonEmail)},
		{"Status", q.Status.Label()},
		{"Stage", engine.CurrentStage(q.Status)},
		{"Submitted", strings.TrimSpace(q.SubmittedBy + " " + q.SubmissionDate)},
		{"Decision", q.Decision},
		{"Due", q.SubmissionDueDate},
		{"QDC members", len(q.QDCMembers)},
		{"Updated", q.LastUpdated},
	})
	tw.Render()
}

func joinOrNone[T ~string](items []T) string {
	if len(items) == 0 {
		return "none"
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(it)
	}
	return strings.Join(parts, ", ")
}
