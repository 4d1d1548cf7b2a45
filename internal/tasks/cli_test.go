package tasks_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"simpletasks/internal/tasks"
	"simpletasks/internal/testutil"
)

// =============================================================================
// Task CLI Tests
// =============================================================================

type taskAction struct {
	Action string     `json:"action"`
	Task   tasks.Task `json:"task"`
	Result string     `json:"result"`
}

type taskList struct {
	Tasks  []tasks.Task `json:"tasks"`
	Filter string       `json:"filter"`
	Count  int          `json:"count"`
	Result string       `json:"result"`
}

// addTask adds a task through the CLI and returns its id
func addTask(t *testing.T, cli *testutil.CLITest, text string) string {
	t.Helper()
	var resp taskAction
	cli.MustExecuteJSON(&resp, "task", "add", text)
	if resp.Task.Text != text {
		t.Fatalf("added task text = %q, want %q", resp.Task.Text, text)
	}
	return strconv.FormatInt(resp.Task.ID, 10)
}

func TestTaskAddCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	stdout := cli.MustExecute("-y", "task", "add", "Buy", "milk")

	testutil.AssertContains(t, stdout, "Created task: Buy milk")
	testutil.AssertResultCode(t, stdout, testutil.ResultActionCompleted)
}

func TestTaskAddBlankCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	stdout, stderr := cli.ExecuteAndFail("-y", "task", "add", "   ")

	testutil.AssertContains(t, stderr, "task text is required")
	testutil.AssertResultCode(t, stdout, testutil.ResultError)

	stdout = cli.MustExecute("-y", "task", "list")
	testutil.AssertContains(t, stdout, "0 tasks")
}

func TestTaskListCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	stdout := cli.MustExecute("-y", "task", "list")
	testutil.AssertContains(t, stdout, "No tasks yet")
	testutil.AssertContains(t, stdout, "0 tasks")

	addTask(t, cli, "Buy milk")
	stdout = cli.MustExecute("-y", "task", "list")
	testutil.AssertContains(t, stdout, "[ ]")
	testutil.AssertContains(t, stdout, "Buy milk")
	testutil.AssertContains(t, stdout, "1 task")
	testutil.AssertNotContains(t, stdout, "1 tasks")
	testutil.AssertResultCode(t, stdout, testutil.ResultInfoOnly)

	addTask(t, cli, "Walk dog")
	stdout = cli.MustExecute("-y", "task")
	testutil.AssertContains(t, stdout, "Walk dog")
	testutil.AssertContains(t, stdout, "2 tasks")
}

func TestTaskToggleAndFilterCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	id := addTask(t, cli, "Buy milk")
	addTask(t, cli, "Walk dog")

	stdout := cli.MustExecute("-y", "task", "toggle", id)
	testutil.AssertContains(t, stdout, "Completed task: Buy milk")

	stdout = cli.MustExecute("-y", "task", "list", "--filter", "completed")
	testutil.AssertContains(t, stdout, "[x]")
	testutil.AssertContains(t, stdout, "Buy milk")
	testutil.AssertNotContains(t, stdout, "Walk dog")
	testutil.AssertContains(t, stdout, "1 task")

	stdout = cli.MustExecute("-y", "task", "list", "-f", "active")
	testutil.AssertContains(t, stdout, "Walk dog")
	testutil.AssertNotContains(t, stdout, "Buy milk")

	stdout = cli.MustExecute("-y", "task", "toggle", id)
	testutil.AssertContains(t, stdout, "Reopened task: Buy milk")
}

func TestTaskListInvalidFilterCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	_, stderr := cli.ExecuteAndFail("-y", "task", "list", "--filter", "someday")

	testutil.AssertContains(t, stderr, "invalid filter: someday")
	testutil.AssertContains(t, stderr, "all, active, completed")
}

func TestTaskSearchCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	addTask(t, cli, "Buy milk")
	addTask(t, cli, "Walk dog")

	stdout := cli.MustExecute("-y", "task", "list", "--search", "MILK")
	testutil.AssertContains(t, stdout, "Buy milk")
	testutil.AssertNotContains(t, stdout, "Walk dog")

	stdout = cli.MustExecute("-y", "task", "list", "--search", "cat")
	testutil.AssertContains(t, stdout, "No matching tasks")
	testutil.AssertContains(t, stdout, "0 tasks")
}

func TestTaskEditCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	id := addTask(t, cli, "Buy milk")

	stdout := cli.MustExecute("-y", "task", "edit", id, "Buy", "oat", "milk")
	testutil.AssertContains(t, stdout, "Updated task: Buy oat milk")
	testutil.AssertResultCode(t, stdout, testutil.ResultActionCompleted)

	stdout = cli.MustExecute("-y", "task", "list")
	testutil.AssertContains(t, stdout, "Buy oat milk")
}

func TestTaskEditNotFoundCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	stdout, stderr := cli.ExecuteAndFail("-y", "task", "edit", "42", "anything")

	testutil.AssertContains(t, stderr, "task not found: 42")
	testutil.AssertResultCode(t, stdout, testutil.ResultError)
}

func TestTaskInvalidIDCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	_, stderr := cli.ExecuteAndFail("-y", "task", "toggle", "abc")

	testutil.AssertContains(t, stderr, `invalid task id "abc"`)
}

func TestTaskRemoveCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	id := addTask(t, cli, "Buy milk")

	stdout := cli.MustExecute("-y", "task", "rm", id)
	testutil.AssertContains(t, stdout, "Deleted task: Buy milk")

	_, stderr := cli.ExecuteAndFail("-y", "task", "rm", id)
	testutil.AssertContains(t, stderr, "task not found")
}

func TestTaskClearCompletedCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)

	stdout := cli.MustExecute("-y", "task", "clear-completed")
	testutil.AssertContains(t, stdout, "No completed tasks")
	testutil.AssertResultCode(t, stdout, testutil.ResultInfoOnly)

	a := addTask(t, cli, "Buy milk")
	b := addTask(t, cli, "Walk dog")
	addTask(t, cli, "Read")
	cli.MustExecute("-y", "task", "toggle", a)
	cli.MustExecute("-y", "task", "toggle", b)

	stdout = cli.MustExecute("-y", "task", "clear-completed")
	testutil.AssertContains(t, stdout, "Cleared 2 completed tasks")
	testutil.AssertResultCode(t, stdout, testutil.ResultActionCompleted)

	stdout = cli.MustExecute("-y", "task", "list")
	testutil.AssertContains(t, stdout, "1 task")
	testutil.AssertContains(t, stdout, "Read")
}

func TestTaskClearCompletedPromptCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	id := addTask(t, cli, "Buy milk")
	cli.MustExecute("-y", "task", "toggle", id)

	cli.SetInput("n\n")
	stdout := cli.MustExecute("task", "clear-completed")
	testutil.AssertContains(t, stdout, "Clear all completed tasks? (y/n)")
	testutil.AssertContains(t, stdout, "Cancelled")

	cli.SetInput("y\n")
	stdout = cli.MustExecute("task", "clear-completed")
	testutil.AssertContains(t, stdout, "Cleared 1 completed task")
	testutil.AssertNotContains(t, stdout, testutil.ResultActionCompleted)
}

func TestTaskJSONCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	id := addTask(t, cli, "Buy milk")
	addTask(t, cli, "Walk dog")
	cli.MustExecute("-y", "task", "toggle", id)

	var list taskList
	cli.MustExecuteJSON(&list, "task", "list", "--filter", "active")
	if list.Count != 1 || len(list.Tasks) != 1 {
		t.Fatalf("count = %d, tasks = %v, want 1 active task", list.Count, list.Tasks)
	}
	if list.Tasks[0].Text != "Walk dog" || list.Tasks[0].Completed {
		t.Errorf("unexpected task %+v", list.Tasks[0])
	}
	if list.Filter != "active" || list.Result != testutil.ResultInfoOnly {
		t.Errorf("filter = %q, result = %q", list.Filter, list.Result)
	}

	stdout, _, code := cli.Execute("task", "edit", "1", "x", "--json")
	testutil.AssertExitCode(t, code, 1)
	testutil.AssertContains(t, stdout, `"result":"ERROR"`)
	testutil.AssertContains(t, stdout, "task not found: 1")
}

func TestTaskFileStoreCLI(t *testing.T) {
	cli := testutil.NewCLITestWithFileStore(t)
	addTask(t, cli, "Buy milk")

	stdout := cli.MustExecute("-y", "task", "list")
	testutil.AssertContains(t, stdout, "Buy milk")

	if _, err := os.Stat(filepath.Join(cli.TmpDir(), "lists", "tasks.json")); err != nil {
		t.Fatalf("tasks.json not written: %v", err)
	}
}

func TestTaskCustomKeyCLI(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SetFullConfig("storage:\n  backend: sqlite\n  tasks_key: todo\n")
	addTask(t, cli, "Buy milk")

	cli.SetFullConfig("storage:\n  backend: sqlite\n")
	stdout := cli.MustExecute("-y", "task", "list")
	testutil.AssertContains(t, stdout, "0 tasks")
}
