package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ejournal-workflow-api/internal/auth"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/validation"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTopicsCommand(ctx *commandContext) *cobra.Command {
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage topic areas",
	}

	var name, slug string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a topic area",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.ensureRunner()
			if err != nil {
				return err
			}
			topic := &models.TopicArea{
				ID:   uuid.NewString(),
				Name: strings.TrimSpace(name),
				Slug: strings.TrimSpace(slug),
			}
			if err := validation.NewValidator().ValidateTopicArea(topic); err != nil {
				return err
			}
			if err := runner.Repos().TopicArea.Create(cmd.Context(), topic); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created topic %s (%s)\n", topic.Slug, topic.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "Display name")
	addCmd.Flags().StringVar(&slug, "slug", "", "Kebab-case identifier")
	topicsCmd.AddCommand(addCmd)

	topicsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List topic areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.ensureRunner()
			if err != nil {
				return err
			}
			topics, err := runner.Repos().TopicArea.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(topics) == 0 {
				fmt.Fprintln(out, "No topic areas")
				return nil
			}
			rows := make([][]string, 0, len(topics))
			for _, t := range topics {
				rows = append(rows, []string{t.Slug, t.Name, t.ID})
			}
			fmt.Fprint(out, renderTable([]string{"Slug", "Name", "ID"}, rows, nil))
			return nil
		},
	})

	return topicsCmd
}

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users and role approvals",
	}

	var (
		email, fullName          string
		author, inactive         bool
		reviewerStatus, editorStatus string
	)
	upsertCmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create a user or update an existing one by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			reviewer, err := parseApproval("reviewer", reviewerStatus)
			if err != nil {
				return err
			}
			editor, err := parseApproval("editor", editorStatus)
			if err != nil {
				return err
			}

			runner, err := ctx.ensureRunner()
			if err != nil {
				return err
			}
			users := runner.Repos().User

			user, err := users.GetByEmail(cmd.Context(), email)
			if err != nil {
				return err
			}
			if user == nil {
				user = &models.User{ID: uuid.NewString(), Email: email}
			}
			if fullName != "" {
				user.FullName = fullName
			}
			user.IsAuthor = author
			user.ReviewerStatus = reviewer
			user.EditorStatus = editor
			user.Active = !inactive
			user.UpdatedAt = time.Now().UTC()

			if err := users.Upsert(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Email", "Name", "Author", "Reviewer", "Editor", "Active"},
				[][]string{{
					user.ID, user.Email, user.FullName,
					fmt.Sprint(user.IsAuthor), string(user.ReviewerStatus), string(user.EditorStatus), fmt.Sprint(user.Active),
				}},
				nil,
			))
			return nil
		},
	}
	upsertCmd.Flags().StringVar(&email, "email", "", "User email (unique)")
	upsertCmd.Flags().StringVar(&fullName, "name", "", "Full name")
	upsertCmd.Flags().BoolVar(&author, "author", true, "Allow the user to own submissions")
	upsertCmd.Flags().StringVar(&reviewerStatus, "reviewer-status", string(models.ApprovalNone), "none, pending, approved or rejected")
	upsertCmd.Flags().StringVar(&editorStatus, "editor-status", string(models.ApprovalNone), "none, pending, approved or rejected")
	upsertCmd.Flags().BoolVar(&inactive, "inactive", false, "Mark the account inactive")
	usersCmd.AddCommand(upsertCmd)

	return usersCmd
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token helpers",
	}

	var (
		email string
		ttl   time.Duration
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for an active user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runner, err := ctx.ensureRunner()
			if err != nil {
				return err
			}
			user, err := runner.Repos().User.GetByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(email)))
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("no user with email %q", email)
			}
			if !user.Active {
				return fmt.Errorf("user %s is inactive", user.Email)
			}
			token, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, user.ID, user.Email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issueCmd.Flags().StringVar(&email, "email", "", "Email of the user the token identifies")
	issueCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = issueCmd.MarkFlagRequired("email")
	tokenCmd.AddCommand(issueCmd)

	return tokenCmd
}

func parseApproval(role, value string) (models.ApprovalStatus, error) {
	status := models.ApprovalStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case models.ApprovalNone, models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
		return status, nil
	}
	return "", fmt.Errorf("invalid --%s-status %q", role, value)
}
