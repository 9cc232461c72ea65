package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

const (
	calendarID   = "primary"
	ownerPrefix  = "Owner: "
	needsAction  = "needsAction"
)

// Scopes are the OAuth scopes the Google backend needs.
var Scopes = []string{calendar.CalendarScope, tasks.TasksScope}

type GoogleConfig struct {
	CredentialsFile string
	TokenFile       string
	Location        *time.Location
}

// Google talks to Google Calendar (primary calendar) and Google Tasks (the
// first task list). Owners are kept in the task notes.
type Google struct {
	cal   *calendar.Service
	tasks *tasks.Service
	loc   *time.Location
	now   func() time.Time

	retryInitial time.Duration

	mu     sync.Mutex
	listID string
}

// OAuthConfig reads the installed-app client secrets downloaded from the
// Google Cloud console.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials %s: %w", credentialsFile, err)
	}
	conf, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}
	return conf, nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", path, err)
	}
	return &tok, nil
}

func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// AuthCodeURL starts the consent flow; the user pastes back the code shown
// by Google, which Exchange turns into a stored token.
func AuthCodeURL(conf *oauth2.Config) string {
	return conf.AuthCodeURL("recap", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func Exchange(ctx context.Context, conf *oauth2.Config, code, tokenFile string) error {
	tok, err := conf.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("exchanging auth code: %w", err)
	}
	return SaveToken(tokenFile, tok)
}

// persistingSource writes refreshed tokens back to disk.
type persistingSource struct {
	src  oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		_ = SaveToken(p.path, tok)
	}
	return tok, nil
}

// NewGoogle authenticates with a stored token. Run `recap auth google` first
// to create one.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	conf, err := OAuthConfig(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("google token missing (run `recap auth google`): %w", err)
	}
	src := &persistingSource{src: conf.TokenSource(ctx, tok), path: cfg.TokenFile, last: tok.AccessToken}
	return NewGoogleWithClient(ctx, oauth2.NewClient(ctx, src), "", cfg.Location)
}

// NewGoogleWithClient uses an already authorized client. A non-empty
// endpoint replaces both API base URLs.
func NewGoogleWithClient(ctx context.Context, hc *http.Client, endpoint string, loc *time.Location) (*Google, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(endpoint, "/")+"/"))
	}
	cal, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating calendar service: %w", err)
	}
	ts, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating tasks service: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Google{cal: cal, tasks: ts, loc: loc, now: time.Now, retryInitial: 500 * time.Millisecond}, nil
}

func (g *Google) Name() string { return "google" }

// call runs fn, retrying rate limits and server errors.
func (g *Google) call(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.retryInitial
	bo.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		err := fn()
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code != http.StatusTooManyRequests && gerr.Code < 500 {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx))
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		err = fmt.Errorf("%w: %s", ErrNotFound, gerr.Message)
	}
	return &Error{Backend: g.Name(), Op: op, Err: err}
}

func (g *Google) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	d := in.Duration
	if d <= 0 {
		d = DefaultEventDuration
	}
	start := in.Start.In(g.loc)
	ev := &calendar.Event{
		Summary:     in.Title,
		Description: in.Description,
		Start:       &calendar.EventDateTime{DateTime: start.Format("2006-01-02T15:04:05"), TimeZone: g.loc.String()},
		End:         &calendar.EventDateTime{DateTime: start.Add(d).Format("2006-01-02T15:04:05"), TimeZone: g.loc.String()},
	}
	for _, a := range validAttendees(in.Attendees) {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: a})
	}

	var created *calendar.Event
	err := g.call(ctx, "create event", func() error {
		var err error
		created, err = g.cal.Events.Insert(calendarID, ev).Context(ctx).Do()
		return err
	})
	if err != nil {
		return Event{}, err
	}
	return g.event(created), nil
}

func (g *Google) event(ev *calendar.Event) Event {
	out := Event{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
		Link:        ev.HtmlLink,
		Attendees:   []string{},
	}
	if ev.Start != nil {
		out.Start = g.parseDateTime(ev.Start)
		out.TimeZone = ev.Start.TimeZone
	}
	if ev.End != nil {
		out.End = g.parseDateTime(ev.End)
	}
	for _, a := range ev.Attendees {
		if a != nil {
			out.Attendees = append(out.Attendees, a.Email)
		}
	}
	return out
}

func (g *Google) parseDateTime(dt *calendar.EventDateTime) time.Time {
	loc := g.loc
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
		return t.In(loc)
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", dt.DateTime, loc); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(dateLayout, dt.Date, loc); err == nil {
		return t
	}
	return time.Time{}
}

func (g *Google) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	call := g.cal.Events.List(calendarID).SingleEvents(true).OrderBy("startTime")
	if f.Date != "" {
		day, err := time.ParseInLocation(dateLayout, f.Date, g.loc)
		if err != nil {
			return nil, &Error{Backend: g.Name(), Op: "list events", Err: err}
		}
		call = call.TimeMin(day.Format(time.RFC3339)).TimeMax(day.AddDate(0, 0, 1).Format(time.RFC3339))
	}

	out := []Event{}
	err := g.call(ctx, "list events", func() error {
		out = out[:0]
		return call.Pages(ctx, func(page *calendar.Events) error {
			for _, ev := range page.Items {
				e := g.event(ev)
				if f.Attendee != "" && !hasAttendee(e.Attendees, f.Attendee) {
					continue
				}
				out = append(out, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Google) DeleteEvent(ctx context.Context, id string) error {
	return g.call(ctx, "delete event", func() error {
		return g.cal.Events.Delete(calendarID, id).Context(ctx).Do()
	})
}

// taskList returns the id of the first task list, cached after the first
// successful lookup.
func (g *Google) taskList(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listID != "" {
		return g.listID, nil
	}
	var lists *tasks.TaskLists
	err := g.call(ctx, "list task lists", func() error {
		var err error
		lists, err = g.tasks.Tasklists.List().Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	if len(lists.Items) == 0 {
		return "", &Error{Backend: g.Name(), Op: "list task lists", Err: errors.New("account has no task lists")}
	}
	g.listID = lists.Items[0].Id
	return g.listID, nil
}

// TaskNotes prefixes notes with the owner line Google tasks carry.
func TaskNotes(owner, notes string) string {
	if owner == "" {
		return notes
	}
	return ownerPrefix + owner + "\n" + notes
}

func ownerFromNotes(notes string) string {
	first, _, _ := strings.Cut(notes, "\n")
	if owner, ok := strings.CutPrefix(first, ownerPrefix); ok {
		return strings.TrimSpace(owner)
	}
	return ""
}

func (g *Google) task(t *tasks.Task) Task {
	out := Task{
		ID:     t.Id,
		Title:  t.Title,
		Notes:  t.Notes,
		Owner:  ownerFromNotes(t.Notes),
		Status: StatusPending,
	}
	if t.Status == string(StatusCompleted) {
		out.Status = StatusCompleted
	}
	if len(t.Due) >= len(dateLayout) {
		out.Due = t.Due[:len(dateLayout)]
	}
	if u, err := time.Parse(time.RFC3339, t.Updated); err == nil {
		out.Updated = u
	}
	return out
}

func (g *Google) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	listID, err := g.taskList(ctx)
	if err != nil {
		return Task{}, err
	}
	t := &tasks.Task{
		Title:  in.Title,
		Notes:  TaskNotes(in.Owner, in.Notes),
		Status: needsAction,
	}
	if d, ok := ParseDueDate(in.Due, g.now().In(g.loc)); ok {
		t.Due = FormatDue(d)
	}

	var created *tasks.Task
	err = g.call(ctx, "create task", func() error {
		var err error
		created, err = g.tasks.Tasks.Insert(listID, t).Context(ctx).Do()
		return err
	})
	if err != nil {
		return Task{}, err
	}
	return g.task(created), nil
}

func (g *Google) UpdateTask(ctx context.Context, id string, u TaskUpdate) (Task, error) {
	listID, err := g.taskList(ctx)
	if err != nil {
		return Task{}, err
	}
	var t *tasks.Task
	err = g.call(ctx, "get task", func() error {
		var err error
		t, err = g.tasks.Tasks.Get(listID, id).Context(ctx).Do()
		return err
	})
	if err != nil {
		return Task{}, err
	}

	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Status != nil {
		switch *u.Status {
		case StatusCompleted:
			t.Status = string(StatusCompleted)
		case StatusPending:
			t.Status = needsAction
			t.Completed = nil
		}
	}

	var updated *tasks.Task
	err = g.call(ctx, "update task", func() error {
		var err error
		updated, err = g.tasks.Tasks.Update(listID, id, t).Context(ctx).Do()
		return err
	})
	if err != nil {
		return Task{}, err
	}
	return g.task(updated), nil
}

func (g *Google) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	listID, err := g.taskList(ctx)
	if err != nil {
		return nil, err
	}
	out := []Task{}
	err = g.call(ctx, "list tasks", func() error {
		out = out[:0]
		return g.tasks.Tasks.List(listID).ShowCompleted(true).ShowHidden(true).Pages(ctx, func(page *tasks.Tasks) error {
			for _, item := range page.Items {
				t := g.task(item)
				if f.Status != "" && t.Status != f.Status {
					continue
				}
				if f.Owner != "" && !strings.EqualFold(t.Owner, f.Owner) {
					continue
				}
				out = append(out, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Google) DeleteTask(ctx context.Context, id string) error {
	listID, err := g.taskList(ctx)
	if err != nil {
		return err
	}
	return g.call(ctx, "delete task", func() error {
		return g.tasks.Tasks.Delete(listID, id).Context(ctx).Do()
	})
}
