package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/R3E-Network/social_layer/internal/cli"
	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/internal/viewmodel"
	"github.com/R3E-Network/social_layer/services/chat"
	"github.com/R3E-Network/social_layer/services/event"
	"github.com/R3E-Network/social_layer/services/notification"
	reportsupabase "github.com/R3E-Network/social_layer/services/report/supabase"
	"github.com/R3E-Network/social_layer/supabase/client"
)

var (
	errUsage = errors.New("invalid usage")
	errShown = errors.New("error already reported")
)

func newFlagSet(w io.Writer, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(program+" "+name, flag.ContinueOnError)
	fs.SetOutput(w)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func usageError(fs *flag.FlagSet, msg string) error {
	fmt.Fprintf(fs.Output(), "%s: %s\n", fs.Name(), msg)
	fs.PrintDefaults()
	return errUsage
}

func (a *app) vmConfig(name string) viewmodel.Config {
	return viewmodel.Config{Name: name, Metrics: a.metrics, Logger: a.log.Named(name)}
}

// drain prints pending view-model effects and returns errShown when one was an error.
func (a *app) drain(effects <-chan viewmodel.Effect) error {
	var failed bool
	for {
		select {
		case e, ok := <-effects:
			if !ok {
				return nil
			}
			if a.show(e) {
				failed = true
			}
		default:
			if failed {
				return errShown
			}
			return nil
		}
	}
}

func (a *app) show(e viewmodel.Effect) (isError bool) {
	switch e := e.(type) {
	case viewmodel.ShowError:
		a.errOut.Error(e.Message)
		return true
	case viewmodel.ShowMessage:
		if a.out.Format() == cli.FormatText {
			a.out.Success(e.Message)
		}
	case viewmodel.Navigate:
		a.log.WithField("route", e.Route).Debug("navigate")
	}
	return false
}

func age(t time.Time) string {
	return cli.Age(time.Now(), t)
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// =============================================================================
// Session
// =============================================================================

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "login")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password (default $SOCIAL_PASSWORD)")
	name := fs.String("name", "", "Display name used on first login")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("SOCIAL_PASSWORD")
	}
	if *email == "" || *password == "" {
		return usageError(fs, "-email and -password are required")
	}

	sess, err := a.client.Auth().SignIn(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := a.tokens.SaveAccessToken(ctx, sess.AccessToken); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	ctx = client.WithAccessToken(ctx, sess.AccessToken)

	u := sess.User
	if u == nil {
		if u, err = a.client.Auth().GetUser(ctx, sess.AccessToken); err != nil {
			return fmt.Errorf("resolve session: %w", err)
		}
	}
	profile, err := a.users.Profile(ctx, u.ID)
	if database.IsNotFound(err) {
		display := *name
		if display == "" {
			display = strings.SplitN(*email, "@", 2)[0]
		}
		profile, err = a.users.Register(ctx, u.ID, display, *email)
	}
	if err != nil {
		return err
	}
	a.log.WithField("user_id", u.ID).Info("signed in")

	return a.out.Print(profile, func(w io.Writer) {
		a.out.Success(fmt.Sprintf("Logged in as %s <%s>", profile.Name, profile.Email))
	})
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	token, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		a.out.Warning("Not logged in")
		return nil
	}
	if err := a.client.Auth().SignOut(ctx, token); err != nil {
		a.log.WithError(err).Warn("sign out request failed, forgetting the session anyway")
	}
	if err := a.tokens.ClearAccessToken(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	a.out.Success("Logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	p, err := a.users.Profile(ctx, userID)
	if err != nil {
		return err
	}
	return a.out.Print(p, func(w io.Writer) {
		fmt.Fprintf(w, "%s <%s>\n", a.out.Colorize(p.Name, cli.ColorBold), p.Email)
		fmt.Fprintf(w, "  id:        %s\n", p.ID)
		if p.City != "" {
			fmt.Fprintf(w, "  city:      %s\n", p.City)
		}
		if len(p.Interests) > 0 {
			fmt.Fprintf(w, "  interests: %s\n", strings.Join(p.Interests, ", "))
		}
		if p.IsAdmin {
			fmt.Fprintln(w, "  role:      admin")
		}
		if p.IsBanned {
			fmt.Fprintln(w, a.out.Colorize("  account suspended", cli.ColorRed))
		}
	})
}

// =============================================================================
// Chats
// =============================================================================

func cmdChats(ctx context.Context, a *app, args []string) error {
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	vm := chat.NewListViewModel(a.chats, userID, a.vmConfig("chats"))
	defer vm.Close()

	vm.Load(ctx)
	if err := a.drain(vm.Effects()); err != nil {
		return err
	}
	st := vm.State()
	return a.out.Print(st.Chats, func(w io.Writer) {
		if len(st.Chats) == 0 {
			fmt.Fprintln(w, "No chats")
			return
		}
		for _, c := range st.Chats {
			unread := "  "
			if c.Unread > 0 {
				unread = a.out.Colorize(fmt.Sprintf("%2d", c.Unread), cli.ColorYellow)
			}
			last := ""
			if c.LastMessage != nil {
				last = fmt.Sprintf("%s: %s", c.LastMessage.SenderName, preview(c.LastMessage.Content, 40))
			}
			fmt.Fprintf(w, "%s %-24s %-8s %s  %s\n", unread, preview(c.Title, 24), age(c.LastActivity()), last, a.out.Colorize(c.ID, cli.ColorCyan))
		}
		fmt.Fprintf(w, "\n%d unread\n", st.TotalUnread)
	})
}

func cmdOpen(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "open")
	other := fs.String("user", "", "User id to chat with")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *other == "" {
		return usageError(fs, "-user is required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	c, err := a.chats.OpenPrivateChat(ctx, userID, *other)
	if err != nil {
		return err
	}
	return a.out.Print(c, func(w io.Writer) {
		fmt.Fprintln(w, c.ID)
	})
}

func printMessages(w io.Writer, msgs []chat.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.SenderName, m.Content)
	}
}

func cmdMessages(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "messages")
	chatID := fs.String("chat", "", "Chat id")
	follow := fs.Bool("follow", false, "Keep printing new messages until interrupted")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *chatID == "" {
		return usageError(fs, "-chat is required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}

	if !*follow {
		msgs, err := a.chats.Messages(ctx, *chatID)
		if err != nil {
			return err
		}
		return a.out.Print(msgs, func(w io.Writer) {
			if len(msgs) == 0 {
				fmt.Fprintln(w, "No messages")
				return
			}
			printMessages(w, msgs)
		})
	}

	vm := chat.NewRoomViewModel(a.chats, userID, *chatID, a.vmConfig("room"))
	defer vm.Close()
	states, cancel := vm.Watch()
	defer cancel()

	vm.Load(ctx)
	if err := a.drain(vm.Effects()); err != nil {
		return err
	}
	defer func() {
		if err := vm.Stop(context.Background()); err != nil {
			a.log.WithError(err).Debug("stop room")
		}
	}()

	seen := make(map[string]bool)
	emit := func(msgs []chat.Message) {
		for _, m := range msgs {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			if err := a.out.Print(m, func(w io.Writer) { printMessages(w, []chat.Message{m}) }); err != nil {
				a.log.WithError(err).Warn("print message")
			}
		}
	}
	emit(vm.State().Messages)
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			emit(st.Messages)
		case e := <-vm.Effects():
			a.show(e)
		}
	}
}

func cmdSend(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "send")
	chatID := fs.String("chat", "", "Chat id")
	text := fs.String("text", "", "Message text")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *chatID == "" || strings.TrimSpace(*text) == "" {
		return usageError(fs, "-chat and -text are required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	m, err := a.chats.SendMessage(ctx, *chatID, userID, *text)
	if err != nil {
		return err
	}
	return a.out.Print(m, func(w io.Writer) {
		a.out.Success("Message sent")
	})
}

func cmdRead(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "read")
	chatID := fs.String("chat", "", "Chat id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *chatID == "" {
		return usageError(fs, "-chat is required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	if err := a.chats.MarkRead(ctx, *chatID, userID); err != nil {
		return err
	}
	a.out.Success("Chat marked read")
	return nil
}

// =============================================================================
// Notifications
// =============================================================================

func printNotification(a *app, w io.Writer, n notification.Notification) {
	mark := " "
	if !n.IsRead {
		mark = a.out.Colorize("●", cli.ColorCyan)
	}
	fmt.Fprintf(w, "%s %-8s %-12s %s", mark, age(n.CreatedAt), n.Type, n.Title)
	if n.Content != "" {
		fmt.Fprintf(w, ": %s", preview(n.Content, 60))
	}
	fmt.Fprintln(w)
}

func cmdNotifications(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "notifications")
	watch := fs.Bool("watch", false, "Keep the feed open and print new notifications")
	limit := fs.Int("limit", 0, "Maximum notifications to list (default 50)")
	readAll := fs.Bool("read-all", false, "Mark every notification read")
	if err := parse(fs, args); err != nil {
		return err
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}

	if *readAll {
		if err := a.notifications.MarkAllRead(ctx, userID); err != nil {
			return err
		}
		a.out.Success("All notifications marked read")
		return nil
	}

	if !*watch {
		items, err := a.notifications.List(ctx, userID, *limit)
		if err != nil {
			return err
		}
		return a.out.Print(items, func(w io.Writer) {
			if len(items) == 0 {
				fmt.Fprintln(w, "No notifications")
				return
			}
			for _, n := range items {
				printNotification(a, w, n)
			}
		})
	}

	vm := notification.NewFeedViewModel(a.notifications, userID, a.vmConfig("notifications"))
	defer vm.Close()
	vm.Start(ctx)
	if err := a.drain(vm.Effects()); err != nil {
		return err
	}
	defer func() {
		if err := vm.Stop(context.Background()); err != nil {
			a.log.WithError(err).Debug("stop feed")
		}
	}()

	st := vm.State()
	if err := a.out.Print(st.Items, func(w io.Writer) {
		for _, n := range st.Items {
			printNotification(a, w, n)
		}
		fmt.Fprintf(w, "%d unread, watching for new notifications...\n", st.Unread)
	}); err != nil {
		return err
	}

	states, cancel := vm.Watch()
	defer cancel()
	shown := make(map[string]bool, len(st.Items))
	for _, n := range st.Items {
		shown[n.ID] = true
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-vm.Effects():
			if _, ok := e.(viewmodel.ShowError); ok {
				a.show(e)
			}
		case s, ok := <-states:
			if !ok {
				return nil
			}
			for _, n := range s.Items {
				if shown[n.ID] {
					continue
				}
				shown[n.ID] = true
				if err := a.out.Print(n, func(w io.Writer) { printNotification(a, w, n) }); err != nil {
					a.log.WithError(err).Warn("print notification")
				}
			}
		}
	}
}

// =============================================================================
// Events
// =============================================================================

func cmdEvents(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "events")
	category := fs.String("category", "", "Only events in this category")
	limit := fs.Int("limit", 20, "Maximum events to list")
	if err := parse(fs, args); err != nil {
		return err
	}
	ctx, _, err := a.session(ctx)
	if err != nil {
		return err
	}
	events, err := a.events.Upcoming(ctx, *category, *limit)
	if err != nil {
		return err
	}
	return a.out.Print(events, func(w io.Writer) {
		if len(events) == 0 {
			fmt.Fprintln(w, "No upcoming events")
			return
		}
		for _, e := range events {
			fmt.Fprintf(w, "%s  %-30s %-12s %s  %s\n",
				e.StartsAt.Local().Format("Mon Jan 2 15:04"), preview(e.Title, 30), e.Category, e.Location,
				a.out.Colorize(e.ID, cli.ColorCyan))
		}
	})
}

func cmdEvent(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "event")
	eventID := fs.String("event", "", "Event id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *eventID == "" {
		return usageError(fs, "-event is required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	d, err := a.events.Get(ctx, userID, *eventID)
	if err != nil {
		return err
	}
	summary, err := a.reviews.Average(ctx, *eventID)
	if err != nil {
		return err
	}
	return a.out.Print(d, func(w io.Writer) {
		e := d.Event
		fmt.Fprintln(w, a.out.Colorize(e.Title, cli.ColorBold))
		fmt.Fprintf(w, "  when:    %s\n", e.StartsAt.Local().Format("Mon Jan 2 2006 15:04"))
		fmt.Fprintf(w, "  where:   %s\n", e.Location)
		fmt.Fprintf(w, "  host:    %s\n", e.CreatorName)
		if e.MaxParticipants > 0 {
			fmt.Fprintf(w, "  going:   %d/%d\n", len(d.Participants), e.MaxParticipants)
		} else {
			fmt.Fprintf(w, "  going:   %d\n", len(d.Participants))
		}
		if summary.Count > 0 {
			fmt.Fprintf(w, "  rating:  %.1f (%d reviews)\n", summary.Average, summary.Count)
		}
		if d.IsParticipant {
			fmt.Fprintln(w, a.out.Colorize("  you are participating", cli.ColorGreen))
		}
		if e.Description != "" {
			fmt.Fprintf(w, "\n%s\n", e.Description)
		}
		for _, an := range d.Announcements {
			fmt.Fprintf(w, "\n[%s] %s\n%s\n", age(an.CreatedAt), an.Title, an.Body)
		}
	})
}

func participate(ctx context.Context, a *app, name string, args []string, op func(*event.DetailViewModel, context.Context)) error {
	fs := newFlagSet(a.stderr, name)
	eventID := fs.String("event", "", "Event id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *eventID == "" {
		return usageError(fs, "-event is required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	vm := event.NewDetailViewModel(a.events, userID, a.vmConfig("event"))
	defer vm.Close()

	vm.Load(ctx, *eventID)
	if err := a.drain(vm.Effects()); err != nil {
		return err
	}
	op(vm, ctx)
	return a.drain(vm.Effects())
}

func cmdJoin(ctx context.Context, a *app, args []string) error {
	return participate(ctx, a, "join", args, (*event.DetailViewModel).Join)
}

func cmdLeave(ctx context.Context, a *app, args []string) error {
	return participate(ctx, a, "leave", args, (*event.DetailViewModel).Leave)
}

func cmdReview(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "review")
	eventID := fs.String("event", "", "Event id")
	rating := fs.Int("rating", 0, "Rating from 1 to 5")
	comment := fs.String("comment", "", "Optional comment")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *eventID == "" || *rating == 0 {
		return usageError(fs, "-event and -rating are required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	r, err := a.reviews.Create(ctx, userID, *eventID, *rating, *comment)
	if err != nil {
		return err
	}
	return a.out.Print(r, func(w io.Writer) {
		a.out.Success(fmt.Sprintf("Reviewed with %d/5", r.Rating))
	})
}

// =============================================================================
// Moderation
// =============================================================================

func cmdReport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "report")
	targetType := fs.String("type", reportsupabase.TargetUser, "Target type: user|event|message")
	target := fs.String("target", "", "Target id")
	reason := fs.String("reason", "", "Why this should be reviewed")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *target == "" || *reason == "" {
		return usageError(fs, "-target and -reason are required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	r, err := a.reports.File(ctx, userID, *targetType, *target, *reason)
	if err != nil {
		return err
	}
	return a.out.Print(r, func(w io.Writer) {
		a.out.Success("Report filed, thank you")
	})
}

func cmdReports(ctx context.Context, a *app, args []string) error {
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	reports, err := a.reports.Open(ctx, userID)
	if err != nil {
		return err
	}
	return a.out.Print(reports, func(w io.Writer) {
		if len(reports) == 0 {
			fmt.Fprintln(w, "No open reports")
			return
		}
		for _, r := range reports {
			fmt.Fprintf(w, "%s  %-8s %-8s %s  %s\n", a.out.Colorize(r.ID, cli.ColorCyan), age(r.CreatedAt), r.TargetType, r.TargetID, preview(r.Reason, 50))
		}
	})
}

func cmdResolve(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "resolve")
	reportID := fs.String("report", "", "Report id")
	dismiss := fs.Bool("dismiss", false, "Dismiss instead of resolving")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *reportID == "" {
		return usageError(fs, "-report is required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	if *dismiss {
		if err := a.reports.Dismiss(ctx, userID, *reportID); err != nil {
			return err
		}
		a.out.Success("Report dismissed")
		return nil
	}
	if err := a.reports.Resolve(ctx, userID, *reportID); err != nil {
		return err
	}
	a.out.Success("Report resolved")
	return nil
}

func cmdBan(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a.stderr, "ban")
	target := fs.String("user", "", "User id")
	undo := fs.Bool("undo", false, "Lift the ban")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *target == "" {
		return usageError(fs, "-user is required")
	}
	ctx, userID, err := a.session(ctx)
	if err != nil {
		return err
	}
	if err := a.reports.BanUser(ctx, userID, *target, !*undo); err != nil {
		return err
	}
	if *undo {
		a.out.Success("User unbanned")
	} else {
		a.out.Success("User banned")
	}
	return nil
}

// =============================================================================
// Tooling
// =============================================================================

func cmdMetrics(ctx context.Context, a *app, args []string) error {
	return a.metrics.WriteText(a.stdout)
}

func cmdCompletion(out *cli.Printer, stdout, stderr io.Writer, args []string) error {
	fs := newFlagSet(stderr, "completion")
	install := fs.Bool("install", false, "Install into the shell's completion directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError(fs, "expected one shell: bash, zsh or fish")
	}
	shell := fs.Arg(0)
	script, err := cli.Completion(shell, program, completionCommands(), []string{"-env", "-o"})
	if err != nil {
		return err
	}
	if !*install {
		_, err := io.WriteString(stdout, script)
		return err
	}
	path, err := cli.InstallCompletion(shell, program, script)
	if err != nil {
		return err
	}
	out.Success("Completion installed to " + path)
	return nil
}
