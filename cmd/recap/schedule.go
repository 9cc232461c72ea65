package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/recap/internal/api"
	"github.com/kalambet/recap/internal/schedule"
)

// --- tasks ---

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage tasks in the schedule backend",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if owner != "" {
			q.Set("owner", owner)
		}
		if status != "" {
			q.Set("status", status)
		}
		var list struct {
			Tasks []schedule.Task `json:"tasks"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, withQuery("/api/tasks", q), nil, &list); err != nil {
			return err
		}
		if len(list.Tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}
		for _, t := range list.Tasks {
			fmt.Println(formatTask(t))
		}
		return nil
	},
}

func formatTask(t schedule.Task) string {
	box := "[ ]"
	if t.Status == schedule.StatusCompleted {
		box = colorize(colorGreen, "[x]")
	}
	line := fmt.Sprintf("%s %s  %s%s", box, t.ID, t.Title, ownerSuffix(t.Owner))
	if t.Due != "" {
		line += colorize(colorYellow, "  due "+t.Due)
	}
	return line
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		due, _ := cmd.Flags().GetString("due")
		notes, _ := cmd.Flags().GetString("notes")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := api.CreateTaskRequest{
			Title:       strings.Join(args, " "),
			Owner:       owner,
			DueDate:     due,
			Description: notes,
		}
		var t schedule.Task
		if err := client.call(cmd.Context(), http.MethodPost, "/api/tasks", body, &t); err != nil {
			return err
		}
		printSuccess("Created task %s", t.ID)
		return nil
	},
}

var tasksCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var t schedule.Task
		if err := client.call(cmd.Context(), http.MethodPost, "/api/tasks/"+url.PathEscape(args[0])+"/complete", nil, &t); err != nil {
			return err
		}
		printSuccess("Completed %s", t.Title)
		return nil
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodDelete, "/api/tasks/"+url.PathEscape(args[0]), nil, nil); err != nil {
			return err
		}
		printSuccess("Deleted task %s", args[0])
		return nil
	},
}

func init() {
	tasksListCmd.Flags().String("owner", "", "filter by owner (substring)")
	tasksListCmd.Flags().String("status", "", "filter by status (pending, completed)")
	tasksCreateCmd.Flags().String("owner", "", "task owner")
	tasksCreateCmd.Flags().String("due", "", "due date (e.g. 2025-03-14, tomorrow, next friday)")
	tasksCreateCmd.Flags().String("notes", "", "task notes")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksCreateCmd)
	tasksCmd.AddCommand(tasksCompleteCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
}

// --- events ---

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Manage calendar events in the schedule backend",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List calendar events",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		attendee, _ := cmd.Flags().GetString("attendee")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if date != "" {
			q.Set("date", date)
		}
		if attendee != "" {
			q.Set("attendee", attendee)
		}
		var list struct {
			Events []schedule.Event `json:"events"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, withQuery("/api/calendar/events", q), nil, &list); err != nil {
			return err
		}
		if len(list.Events) == 0 {
			fmt.Println("No events found.")
			return nil
		}
		for _, e := range list.Events {
			fmt.Printf("%s  %s-%s  %s\n", e.ID, e.Start.Format("2006-01-02 15:04"), e.End.Format("15:04"), colorize(colorBold, e.Title))
			if len(e.Attendees) > 0 {
				fmt.Printf("    with %s\n", strings.Join(e.Attendees, ", "))
			}
		}
		return nil
	},
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a calendar event",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		at, _ := cmd.Flags().GetString("time")
		minutes, _ := cmd.Flags().GetInt("duration")
		attendees, _ := cmd.Flags().GetStringSlice("attendee")
		description, _ := cmd.Flags().GetString("description")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := api.CreateEventRequest{
			Title:           strings.Join(args, " "),
			Date:            date,
			Time:            at,
			Attendees:       attendees,
			Description:     description,
			DurationMinutes: minutes,
		}
		var e schedule.Event
		if err := client.call(cmd.Context(), http.MethodPost, "/api/calendar/events", body, &e); err != nil {
			return err
		}
		printSuccess("Created event %s at %s", e.ID, e.Start.Format("2006-01-02 15:04"))
		if e.Link != "" {
			printStatus("Link", "%s", e.Link)
		}
		return nil
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a calendar event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodDelete, "/api/calendar/events/"+url.PathEscape(args[0]), nil, nil); err != nil {
			return err
		}
		printSuccess("Deleted event %s", args[0])
		return nil
	},
}

func init() {
	eventsListCmd.Flags().String("date", "", "only events on this day (YYYY-MM-DD)")
	eventsListCmd.Flags().String("attendee", "", "filter by attendee (substring)")
	eventsCreateCmd.Flags().String("date", "", "event date (YYYY-MM-DD)")
	eventsCreateCmd.Flags().String("time", "", "start time (e.g. 14:30, 2:30 PM)")
	eventsCreateCmd.Flags().Int("duration", 0, "duration in minutes (default 60)")
	eventsCreateCmd.Flags().StringSlice("attendee", nil, "attendee email (repeatable)")
	eventsCreateCmd.Flags().String("description", "", "event description")
	eventsCreateCmd.MarkFlagRequired("date")

	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsCreateCmd)
	eventsCmd.AddCommand(eventsDeleteCmd)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
