package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"simpletasks/internal/tasks"
	"simpletasks/internal/utils"
)

type listTasksResponse struct {
	Tasks  []tasks.Task `json:"tasks"`
	Filter string       `json:"filter"`
	Count  int          `json:"count"`
	Result string       `json:"result"`
}

type taskActionResponse struct {
	Action  string      `json:"action"`
	Task    *tasks.Task `json:"task,omitempty"`
	Cleared int         `json:"cleared,omitempty"`
	Result  string      `json:"result"`
}

// newTaskCmd creates the 'task' subcommand for the to-do list
func newTaskCmd(a *app) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the to-do list",
		Long:  "Add, edit, complete and remove tasks. Without a subcommand, lists all tasks.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				return a.doTaskList(s, tasks.FilterAll, "")
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	taskCmd.AddCommand(newTaskAddCmd(a))
	taskCmd.AddCommand(newTaskListCmd(a))
	taskCmd.AddCommand(newTaskEditCmd(a))
	taskCmd.AddCommand(newTaskToggleCmd(a))
	taskCmd.AddCommand(newTaskRemoveCmd(a))
	taskCmd.AddCommand(newTaskClearCmd(a))

	return taskCmd
}

// withSession opens the list store for the duration of fn
func (a *app) withSession(fn func(s *session) error) error {
	s, err := a.openSession()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}

// parseTaskID parses a task id argument
func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q: must be a number", s)
	}
	return id, nil
}

func newTaskAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "add [text]",
		Aliases: []string{"a"},
		Short:   "Add a task",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				task, err := s.tasks.Add(strings.Join(args, " "))
				if err != nil {
					return err
				}
				return a.taskAction("add", task, fmt.Sprintf("Created task: %s (id %d)", task.Text, task.ID))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newTaskListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filterName, _ := cmd.Flags().GetString("filter")
			search, _ := cmd.Flags().GetString("search")
			filter, err := tasks.ParseFilter(filterName)
			if err != nil {
				return err
			}
			return a.withSession(func(s *session) error {
				return a.doTaskList(s, filter, search)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringP("filter", "f", "all", "Show all, active or completed tasks")
	cmd.Flags().StringP("search", "s", "", "Only show tasks containing this text")
	return cmd
}

// doTaskList prints the tasks passing filter and search, then the count line
func (a *app) doTaskList(s *session, filter tasks.Filter, search string) error {
	items := s.tasks.Query(filter, search)
	if a.jsonOutput() {
		if items == nil {
			items = []tasks.Task{}
		}
		return outputJSON(listTasksResponse{
			Tasks:  items,
			Filter: string(filter),
			Count:  len(items),
			Result: ResultInfoOnly,
		}, a.stdout)
	}

	if len(items) == 0 {
		if search != "" || filter != tasks.FilterAll {
			_, _ = fmt.Fprintln(a.stdout, "No matching tasks")
		} else {
			_, _ = fmt.Fprintln(a.stdout, "No tasks yet")
		}
	}
	for _, t := range items {
		mark := "[ ]"
		if t.Completed {
			mark = "[x]"
		}
		_, _ = fmt.Fprintf(a.stdout, "  %s %d  %s\n", mark, t.ID, t.Text)
	}
	_, _ = fmt.Fprintln(a.stdout, utils.Pluralize(len(items), "task", "tasks"))
	a.result(ResultInfoOnly)
	return nil
}

func newTaskEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "edit [id] [text]",
		Aliases: []string{"e"},
		Short:   "Change a task's text",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(func(s *session) error {
				task, err := s.tasks.Update(id, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				if task == nil {
					return utils.ErrTaskNotFound(id)
				}
				return a.taskAction("edit", task, "Updated task: "+task.Text)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newTaskToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "toggle [id]",
		Aliases: []string{"t", "done"},
		Short:   "Mark a task done, or reopen it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(func(s *session) error {
				task, err := s.tasks.Toggle(id)
				if err != nil {
					return err
				}
				if task == nil {
					return utils.ErrTaskNotFound(id)
				}
				msg := "Reopened task: " + task.Text
				if task.Completed {
					msg = "Completed task: " + task.Text
				}
				return a.taskAction("toggle", task, msg)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newTaskRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [id]",
		Aliases: []string{"delete", "d"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(func(s *session) error {
				task := s.tasks.Get(id)
				if task == nil {
					return utils.ErrTaskNotFound(id)
				}
				if _, err := s.tasks.Remove(id); err != nil {
					return err
				}
				return a.taskAction("delete", task, "Deleted task: "+task.Text)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newTaskClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Delete every completed task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				return a.doTaskClear(s)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// doTaskClear removes completed tasks after confirmation
func (a *app) doTaskClear(s *session) error {
	if !s.tasks.HasCompleted() {
		if a.jsonOutput() {
			return outputJSON(taskActionResponse{Action: "clear-completed", Result: ResultInfoOnly}, a.stdout)
		}
		_, _ = fmt.Fprintln(a.stdout, "No completed tasks")
		a.result(ResultInfoOnly)
		return nil
	}

	if !a.confirm("Clear all completed tasks?") {
		_, _ = fmt.Fprintln(a.stdout, "Cancelled")
		return nil
	}

	n, err := s.tasks.ClearCompleted()
	if err != nil {
		return err
	}
	if a.jsonOutput() {
		return outputJSON(taskActionResponse{Action: "clear-completed", Cleared: n, Result: ResultActionCompleted}, a.stdout)
	}
	_, _ = fmt.Fprintf(a.stdout, "Cleared %s\n", utils.Pluralize(n, "completed task", "completed tasks"))
	a.result(ResultActionCompleted)
	return nil
}

// taskAction prints the outcome of a task mutation
func (a *app) taskAction(action string, task *tasks.Task, msg string) error {
	if a.jsonOutput() {
		return outputJSON(taskActionResponse{Action: action, Task: task, Result: ResultActionCompleted}, a.stdout)
	}
	_, _ = fmt.Fprintln(a.stdout, msg)
	a.result(ResultActionCompleted)
	return nil
}
