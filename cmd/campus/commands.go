package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/rkvalley/campus/internal/api"
	"github.com/rkvalley/campus/internal/app"
	"github.com/rkvalley/campus/internal/gateway"
	"github.com/rkvalley/campus/internal/guard"
	"github.com/rkvalley/campus/internal/messaging"
	"github.com/rkvalley/campus/internal/model"
	"github.com/rkvalley/campus/internal/tui"
)

var errNotLoggedIn = errors.New("not logged in (run `campus login`)")

func requireIdentity(a *app.App) (model.Identity, error) {
	id := a.Sessions.Identity()
	if id == nil {
		return model.Identity{}, errNotLoggedIn
	}
	return *id, nil
}

func printRaw(raw json.RawMessage) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	printJSON(v)
}

// ---- auth ----

func cmdLogin(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	_ = fs.Parse(args)

	id, err := a.API.Login(ctx, api.LoginRequest{Username: *u, Password: *p})
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s), home %s\n", id.Username, id.Role, guard.HomeFor(id.Role))
	return nil
}

func cmdRegister(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "full name")
	u := fs.String("u", "", "username")
	email := fs.String("email", "", "email")
	p := fs.String("p", "", "password")
	role := fs.String("role", string(model.RoleStudent), "Student, Faculty or Admin")
	class := fs.String("class", "", "class name (students)")
	pic := fs.String("pic", "", "profile picture file")
	_ = fs.Parse(args)

	var file *gateway.File
	if *pic != "" {
		f, err := os.Open(*pic)
		if err != nil {
			return err
		}
		defer f.Close()
		file = &gateway.File{Name: filepath.Base(*pic), Content: f}
	}
	userID, err := a.API.Register(ctx, api.RegisterRequest{
		Name:      *name,
		Username:  *u,
		Email:     *email,
		Password:  *p,
		Role:      model.Role(*role),
		ClassName: *class,
	}, file)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s; check %s for the code, then run `campus verify`\n", userID, *email)
	return nil
}

func cmdVerify(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	email := fs.String("email", "", "email")
	otp := fs.String("otp", "", "six digit code")
	_ = fs.Parse(args)

	id, err := a.API.VerifyOTP(ctx, api.VerifyRequest{Email: *email, OTP: *otp})
	if err != nil {
		return err
	}
	fmt.Printf("verified, logged in as %s (%s)\n", id.Username, id.Role)
	return nil
}

func cmdResendOTP(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("resend-otp", flag.ExitOnError)
	email := fs.String("email", "", "email")
	_ = fs.Parse(args)

	if err := a.API.ResendOTP(ctx, *email); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func cmdWhoami(a *app.App) error {
	id, err := requireIdentity(a)
	if err != nil {
		return err
	}
	out := map[string]any{
		"id":        id.ID,
		"name":      id.Name,
		"username":  id.Username,
		"role":      id.Role,
		"className": id.ClassName,
		"home":      guard.HomeFor(id.Role),
	}
	if exp, ok := a.Sessions.ExpiresAt(); ok {
		out["expiresAt"] = exp
	}
	printJSON(out)
	return nil
}

func cmdRoute(a *app.App, args []string) error {
	if len(args) != 1 {
		return usageError("route takes exactly one path")
	}
	decision, redirect := guard.Check(args[0], a.Sessions.Loading(), a.Sessions.Identity())
	if redirect != "" {
		fmt.Printf("%s -> %s\n", decision, redirect)
		return nil
	}
	fmt.Println(decision)
	return nil
}

func cmdGet(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return usageError("get takes exactly one API path")
	}
	path := args[0]
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var raw json.RawMessage
	if err := a.Gateway.GetJSON(ctx, path, &raw); err != nil {
		return err
	}
	printRaw(raw)
	return nil
}

// ---- academic views ----

func cmdAssignments(ctx context.Context, a *app.App) error {
	id, err := requireIdentity(a)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	switch id.Role {
	case model.RoleStudent:
		raw, err = a.API.StudentAssignments(ctx)
	case model.RoleFaculty:
		raw, err = a.API.TeacherAssignments(ctx)
	default:
		return errors.Errorf("assignments are not available to %s", id.Role)
	}
	if err != nil {
		return err
	}
	printRaw(raw)
	return nil
}

func cmdTimetable(ctx context.Context, a *app.App) error {
	id, err := requireIdentity(a)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	switch id.Role {
	case model.RoleStudent:
		raw, err = a.API.ClassTimetable(ctx, id.ClassName)
	case model.RoleFaculty:
		raw, err = a.API.FacultyTimetable(ctx, id.ID)
	default:
		raw, err = a.API.Timetable(ctx)
	}
	if err != nil {
		return err
	}
	printRaw(raw)
	return nil
}

func cmdAttendance(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("attendance", flag.ExitOnError)
	subject := fs.String("subject", "", "subject filter")
	month := fs.String("month", "", "month filter (1-12)")
	year := fs.String("year", "", "year filter")
	_ = fs.Parse(args)

	id, err := requireIdentity(a)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	switch id.Role {
	case model.RoleStudent:
		raw, err = a.API.StudentAttendance(ctx, id.ID, api.AttendanceFilter{Subject: *subject, Month: *month, Year: *year})
	case model.RoleFaculty:
		raw, err = a.API.FacultyClasses(ctx, id.ID)
	default:
		raw, err = a.API.StudentsAttendance(ctx)
	}
	if err != nil {
		return err
	}
	printRaw(raw)
	return nil
}

func cmdContent(ctx context.Context, a *app.App) error {
	id, err := requireIdentity(a)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	switch id.Role {
	case model.RoleStudent:
		raw, err = a.API.StudentContent(ctx)
	case model.RoleFaculty:
		raw, err = a.API.FacultyContent(ctx)
	default:
		return errors.Errorf("content is not available to %s", id.Role)
	}
	if err != nil {
		return err
	}
	printRaw(raw)
	return nil
}

// cmdFeedback submits feedback as a student, or lists received feedback for
// faculty and admins.
func cmdFeedback(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	faculty := fs.String("faculty", "", "faculty user id")
	subject := fs.String("subject", "", "subject")
	rating := fs.Int("rating", 0, "rating 1-5")
	comments := fs.String("comments", "", "comments")
	anonymous := fs.Bool("anonymous", false, "hide your name")
	_ = fs.Parse(args)

	id, err := requireIdentity(a)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	switch id.Role {
	case model.RoleStudent:
		if *faculty == "" {
			list, err := a.API.Faculties(ctx)
			if err != nil {
				return err
			}
			printJSON(list)
			return nil
		}
		raw, err = a.API.SubmitFeedback(ctx, api.FeedbackRequest{
			FacultyID:   *faculty,
			Subject:     *subject,
			Rating:      *rating,
			Comments:    *comments,
			IsAnonymous: *anonymous,
		})
	case model.RoleFaculty:
		raw, err = a.API.FacultyFeedback(ctx, id.ID)
	default:
		raw, err = a.API.AllFacultyFeedback(ctx)
	}
	if err != nil {
		return err
	}
	printRaw(raw)
	return nil
}

// ---- realtime ----

func cmdChat(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	with := fs.String("with", "", "open the conversation with this user id")
	_ = fs.Parse(args)

	id, err := requireIdentity(a)
	if err != nil {
		return err
	}
	if d, _ := guard.Check("/chat", a.Sessions.Loading(), &id); d != guard.DecisionRender {
		return errNotLoggedIn
	}
	users, err := a.API.ChatUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "load chat users")
	}

	sub := a.Realtime.Subscribe()
	defer sub.Close()

	screen := tui.NewChat(id, users, a.Realtime, sub.C(), *with)
	_, err = tea.NewProgram(screen, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func cmdRelayTail(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("relay-tail", flag.ExitOnError)
	user := fs.String("user", "", "only events for this user id")
	_ = fs.Parse(args)

	if a.Bus == nil {
		return errors.New("relay-tail needs a NATS URL (CAMPUS_NATS_URL)")
	}
	err := a.Bus.SubscribeEvents(*user, func(ev messaging.Event) {
		printJSON(ev)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
