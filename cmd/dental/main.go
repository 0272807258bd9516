package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dental/dental/internal/config"
	"github.com/dental/dental/internal/domain/auth"
	"github.com/dental/dental/internal/domain/records"
	"github.com/dental/dental/internal/platform/snapshot"
)

func main() {
	root := &cobra.Command{
		Use:           "dental",
		Short:         "Dental clinic records tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		loginCmd(),
		logoutCmd(),
		whoamiCmd(),
		registerCmd(),
		patientCmd(),
		appointmentCmd(),
		myCmd(),
		statsCmd(),
		seedCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app wires the stores together for one CLI invocation. The CLI is the
// in-process UI collaborator; each run restores the persisted session,
// performs one operation, and exits.
type app struct {
	cfg  *config.Config
	log  zerolog.Logger
	st   snapshot.Store
	recs *records.Service
	auth *auth.Service
}

func openApp(ctx context.Context) (*app, error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("ENV") == "" || os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := snapshot.Open(ctx, snapshot.Options{
		Driver:      cfg.StoreDriver,
		Dir:         cfg.StoreDir,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: logger, st: st}
	a.recs = records.NewService(records.NewRepository(st), logger)
	a.auth = auth.NewService(auth.NewRepository(st), logger, auth.WithPatientDirectory(a.recs))
	a.recs.BindCredentials(a.auth)

	if cfg.SeedDemoData {
		if err := a.recs.EnsureSeeded(ctx, time.Now()); err != nil {
			st.Close()
			return nil, err
		}
		if err := a.auth.EnsureSeeded(ctx, records.SeedPatientID); err != nil {
			st.Close()
			return nil, err
		}
	}

	if _, err := a.auth.Restore(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() { a.st.Close() }

func (a *app) requireLogin() (*auth.Session, error) {
	s := a.auth.Current()
	if s == nil {
		return nil, fmt.Errorf("not logged in")
	}
	return s, nil
}

func (a *app) requireAdmin() (*auth.Session, error) {
	s, err := a.requireLogin()
	if err != nil {
		return nil, err
	}
	if !s.IsAdmin() {
		return nil, fmt.Errorf("admin role required")
	}
	return s, nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// parseWhen accepts RFC3339 or a local "2006-01-02 15:04" timestamp.
func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want RFC3339 or \"2006-01-02 15:04\")", s)
	}
	return t, nil
}

// parseAttachment turns "name=url" into an attachment, classifying
// common image extensions.
func parseAttachment(s string) (records.Attachment, error) {
	name, url, ok := strings.Cut(s, "=")
	if !ok || name == "" || url == "" {
		return records.Attachment{}, fmt.Errorf("invalid attachment %q (want name=url)", s)
	}
	kind := records.AttachmentFile
	switch strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")) {
	case "png", "jpg", "jpeg", "gif", "webp":
		kind = records.AttachmentImage
	}
	return records.Attachment{Name: name, URL: url, Kind: kind}, nil
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			s, err := a.auth.Login(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("logged in as %s (%s)\n", s.User.Email, s.User.Role)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Login email")
	cmd.Flags().String("password", "", "Login password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.auth.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			s := a.auth.Current()
			if s == nil {
				fmt.Println("not logged in")
				return nil
			}
			fmt.Printf("%s (%s)\n", s.User.Email, s.User.Role)
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new patient with a portal login",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			dob, _ := cmd.Flags().GetString("dob")
			contact, _ := cmd.Flags().GetString("contact")
			health, _ := cmd.Flags().GetString("health-info")
			if email == "" || password == "" || name == "" {
				return fmt.Errorf("--email, --password, and --name are required")
			}

			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			patientID, err := a.recs.AddPatient(ctx, records.Patient{
				Name: name, DOB: dob, Contact: contact, HealthInfo: health, Email: email,
			})
			if err != nil {
				return err
			}
			if _, err := a.auth.SignUp(ctx, email, password, patientID); err != nil {
				return err
			}
			fmt.Printf("registered patient %s\n", patientID)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Portal login email")
	cmd.Flags().String("password", "", "Portal login password")
	cmd.Flags().String("name", "", "Patient name")
	cmd.Flags().String("dob", "", "Date of birth")
	cmd.Flags().String("contact", "", "Contact number")
	cmd.Flags().String("health-info", "", "Health notes")
	return cmd
}

func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Manage patients (admin)",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			patients, err := a.recs.ListPatients(ctx)
			if err != nil {
				return err
			}
			return printJSON(patients)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			dob, _ := cmd.Flags().GetString("dob")
			contact, _ := cmd.Flags().GetString("contact")
			health, _ := cmd.Flags().GetString("health-info")
			email, _ := cmd.Flags().GetString("email")

			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			id, err := a.recs.AddPatient(ctx, records.Patient{
				Name: name, DOB: dob, Contact: contact, HealthInfo: health, Email: email,
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	addCmd.Flags().String("name", "", "Patient name")
	addCmd.Flags().String("dob", "", "Date of birth")
	addCmd.Flags().String("contact", "", "Contact number")
	addCmd.Flags().String("health-info", "", "Health notes")
	addCmd.Flags().String("email", "", "Email (optional)")

	updateCmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update patient fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			var upd records.PatientUpdate
			if cmd.Flags().Changed("name") {
				v, _ := cmd.Flags().GetString("name")
				upd.Name = &v
			}
			if cmd.Flags().Changed("dob") {
				v, _ := cmd.Flags().GetString("dob")
				upd.DOB = &v
			}
			if cmd.Flags().Changed("contact") {
				v, _ := cmd.Flags().GetString("contact")
				upd.Contact = &v
			}
			if cmd.Flags().Changed("health-info") {
				v, _ := cmd.Flags().GetString("health-info")
				upd.HealthInfo = &v
			}
			if cmd.Flags().Changed("email") {
				v, _ := cmd.Flags().GetString("email")
				upd.Email = &v
			}
			return a.recs.UpdatePatient(ctx, args[0], upd)
		},
	}
	updateCmd.Flags().String("name", "", "Patient name")
	updateCmd.Flags().String("dob", "", "Date of birth")
	updateCmd.Flags().String("contact", "", "Contact number")
	updateCmd.Flags().String("health-info", "", "Health notes")
	updateCmd.Flags().String("email", "", "Email")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a patient and all their appointments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			return a.recs.DeletePatient(ctx, args[0])
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			p, err := a.recs.GetPatient(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}

	cmd.AddCommand(listCmd, addCmd, updateCmd, deleteCmd, showCmd)
	return cmd
}

func appointmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "appointment",
		Aliases: []string{"incident"},
		Short:   "Manage appointments (admin)",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List appointments, completing overdue scheduled ones first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			if _, err := a.recs.SweepOverdue(ctx, time.Now()); err != nil {
				return err
			}
			patientID, _ := cmd.Flags().GetString("patient")
			var incidents []records.Incident
			if patientID != "" {
				incidents, err = a.recs.ListIncidentsByPatient(ctx, patientID)
			} else {
				incidents, err = a.recs.ListIncidents(ctx)
			}
			if err != nil {
				return err
			}
			return printJSON(incidents)
		},
	}
	listCmd.Flags().String("patient", "", "Only this patient's appointments")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, _ := cmd.Flags().GetString("patient")
			title, _ := cmd.Flags().GetString("title")
			when, _ := cmd.Flags().GetString("date")
			if patientID == "" || title == "" || when == "" {
				return fmt.Errorf("--patient, --title, and --date are required")
			}
			at, err := parseWhen(when)
			if err != nil {
				return err
			}
			// Form-level rule: new appointments cannot be back-dated.
			if at.Before(time.Now()) {
				return fmt.Errorf("cannot schedule an appointment in the past")
			}
			description, _ := cmd.Flags().GetString("description")
			comments, _ := cmd.Flags().GetString("comments")
			cost, _ := cmd.Flags().GetFloat64("cost")
			attachSpecs, _ := cmd.Flags().GetStringArray("attach")
			files := []records.Attachment{}
			for _, spec := range attachSpecs {
				att, err := parseAttachment(spec)
				if err != nil {
					return err
				}
				files = append(files, att)
			}

			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			id, err := a.recs.AddIncident(ctx, records.Incident{
				PatientID:       patientID,
				Title:           title,
				Description:     description,
				Comments:        comments,
				AppointmentDate: at,
				Cost:            cost,
				Status:          records.StatusScheduled,
				Files:           files,
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	addCmd.Flags().String("patient", "", "Patient id")
	addCmd.Flags().String("title", "", "Appointment title")
	addCmd.Flags().String("description", "", "Description")
	addCmd.Flags().String("comments", "", "Comments")
	addCmd.Flags().String("date", "", "Appointment date/time")
	addCmd.Flags().Float64("cost", 0, "Cost")
	addCmd.Flags().StringArray("attach", nil, "Attachment as name=url (repeatable)")

	editCmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Correct appointment fields (overwrite)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			var upd records.IncidentUpdate
			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				upd.Title = &v
			}
			if cmd.Flags().Changed("description") {
				v, _ := cmd.Flags().GetString("description")
				upd.Description = &v
			}
			if cmd.Flags().Changed("comments") {
				v, _ := cmd.Flags().GetString("comments")
				upd.Comments = &v
			}
			if cmd.Flags().Changed("date") {
				v, _ := cmd.Flags().GetString("date")
				at, err := parseWhen(v)
				if err != nil {
					return err
				}
				upd.AppointmentDate = &at
			}
			if cmd.Flags().Changed("cost") {
				v, _ := cmd.Flags().GetFloat64("cost")
				upd.Cost = &v
			}
			if cmd.Flags().Changed("status") {
				v, _ := cmd.Flags().GetString("status")
				st := records.Status(v)
				upd.Status = &st
			}
			return a.recs.UpdateIncident(ctx, args[0], upd)
		},
	}
	editCmd.Flags().String("title", "", "Appointment title")
	editCmd.Flags().String("description", "", "Description")
	editCmd.Flags().String("comments", "", "Comments")
	editCmd.Flags().String("date", "", "Appointment date/time")
	editCmd.Flags().Float64("cost", 0, "Cost")
	editCmd.Flags().String("status", "", "Status")

	manageCmd := &cobra.Command{
		Use:   "manage <id>",
		Short: "Record a follow-up charge/attachments against a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			cost, _ := cmd.Flags().GetFloat64("cost")
			comments, _ := cmd.Flags().GetString("comments")
			attachSpecs, _ := cmd.Flags().GetStringArray("attach")
			req := records.ManageRequest{
				Cost:   cost,
				Status: records.Status(status),
			}
			if cmd.Flags().Changed("comments") {
				req.Comments = &comments
			}
			if cmd.Flags().Changed("date") {
				v, _ := cmd.Flags().GetString("date")
				at, err := parseWhen(v)
				if err != nil {
					return err
				}
				req.AppointmentDate = &at
			}
			for _, spec := range attachSpecs {
				att, err := parseAttachment(spec)
				if err != nil {
					return err
				}
				req.Files = append(req.Files, att)
			}

			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			return a.recs.ManageIncident(ctx, args[0], req)
		},
	}
	manageCmd.Flags().String("status", "Completed", "Scheduled or Completed")
	manageCmd.Flags().Float64("cost", 0, "Additional cost for this visit")
	manageCmd.Flags().String("comments", "", "Comments")
	manageCmd.Flags().String("date", "", "Rescheduled date/time")
	manageCmd.Flags().StringArray("attach", nil, "Additional attachment as name=url (repeatable)")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			return a.recs.DeleteIncident(ctx, args[0])
		},
	}

	cmd.AddCommand(listCmd, addCmd, editCmd, manageCmd, deleteCmd)
	return cmd
}

// myCmd is the patient-facing slice: a logged-in patient sees only
// their own records.
func myCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "my",
		Short: "View your own records (patient)",
	}

	appts := &cobra.Command{
		Use:   "appointments",
		Short: "List your appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			s, err := a.requireLogin()
			if err != nil {
				return err
			}
			if s.User.PatientID == "" {
				return fmt.Errorf("session has no patient record")
			}
			incidents, err := a.recs.ListIncidentsByPatient(ctx, s.User.PatientID)
			if err != nil {
				return err
			}
			return printJSON(incidents)
		},
	}

	profile := &cobra.Command{
		Use:   "profile",
		Short: "Show your patient record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			s, err := a.requireLogin()
			if err != nil {
				return err
			}
			if s.User.PatientID == "" {
				return fmt.Errorf("session has no patient record")
			}
			p, err := a.recs.GetPatient(ctx, s.User.PatientID)
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}

	cmd.AddCommand(appts, profile)
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard KPIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.requireAdmin(); err != nil {
				return err
			}
			st, err := a.recs.Stats(ctx, time.Now())
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the initial data if absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.recs.EnsureSeeded(ctx, time.Now()); err != nil {
				return err
			}
			if err := a.auth.EnsureSeeded(ctx, records.SeedPatientID); err != nil {
				return err
			}
			fmt.Println("store ready")
			return nil
		},
	}
}
