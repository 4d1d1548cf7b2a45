package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"simpletasks/internal/bookmarks"
	"simpletasks/internal/utils"
)

type listBooksResponse struct {
	Books  []bookmarks.Book `json:"books"`
	Count  int              `json:"count"`
	Result string           `json:"result"`
}

type bookActionResponse struct {
	Action string          `json:"action"`
	Book   *bookmarks.Book `json:"book"`
	Result string          `json:"result"`
}

// newBookCmd creates the 'book' subcommand for the reading list
func newBookCmd(a *app) *cobra.Command {
	bookCmd := &cobra.Command{
		Use:     "book",
		Aliases: []string{"books"},
		Short:   "Manage the reading list",
		Long:    "Bookmark books by title, author and URL. Without a subcommand, lists all bookmarks.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				return a.doBookList(s, "")
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bookCmd.AddCommand(newBookAddCmd(a))
	bookCmd.AddCommand(newBookListCmd(a))
	bookCmd.AddCommand(newBookEditCmd(a))
	bookCmd.AddCommand(newBookRemoveCmd(a))

	return bookCmd
}

func newBookAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Bookmark a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			author, _ := cmd.Flags().GetString("author")
			url, _ := cmd.Flags().GetString("url")
			return a.withSession(func(s *session) error {
				book, err := s.books.Add(title, author, url)
				if err != nil {
					return err
				}
				return a.bookAction("add", book, fmt.Sprintf("Added bookmark: %s by %s", book.Title, book.Author))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("title", "", "Book title")
	cmd.Flags().String("author", "", "Book author")
	cmd.Flags().String("url", "", "Link to the book")
	return cmd
}

func newBookListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List bookmarks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			return a.withSession(func(s *session) error {
				return a.doBookList(s, search)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringP("search", "s", "", "Only show books whose title contains this text")
	return cmd
}

// doBookList prints bookmarks whose title matches search
func (a *app) doBookList(s *session, search string) error {
	items := s.books.Query(search)
	if a.jsonOutput() {
		if items == nil {
			items = []bookmarks.Book{}
		}
		return outputJSON(listBooksResponse{Books: items, Count: len(items), Result: ResultInfoOnly}, a.stdout)
	}

	if len(items) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No bookmarks")
	}
	for _, b := range items {
		_, _ = fmt.Fprintf(a.stdout, "  %s by %s\n    %s\n", b.Title, b.Author, b.URL)
	}
	_, _ = fmt.Fprintln(a.stdout, utils.Pluralize(len(items), "bookmark", "bookmarks"))
	a.result(ResultInfoOnly)
	return nil
}

func newBookEditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit [url]",
		Short: "Change a bookmark's title or author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			author, _ := cmd.Flags().GetString("author")
			return a.withSession(func(s *session) error {
				book, err := s.books.Update(args[0], title, author)
				if err != nil {
					return err
				}
				if book == nil {
					return utils.ErrBookmarkNotFound(args[0])
				}
				return a.bookAction("edit", book, fmt.Sprintf("Updated bookmark: %s by %s", book.Title, book.Author))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("author", "", "New author")
	return cmd
}

func newBookRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [url]",
		Aliases: []string{"delete", "d"},
		Short:   "Remove a bookmark",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			return a.withSession(func(s *session) error {
				var book *bookmarks.Book
				for _, b := range s.books.All() {
					if b.URL == url {
						book = &b
						break
					}
				}
				if book == nil {
					return utils.ErrBookmarkNotFound(url)
				}
				if _, err := s.books.Remove(book.URL); err != nil {
					return err
				}
				return a.bookAction("delete", book, "Deleted bookmark: "+book.Title)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// bookAction prints the outcome of a bookmark mutation
func (a *app) bookAction(action string, book *bookmarks.Book, msg string) error {
	if a.jsonOutput() {
		return outputJSON(bookActionResponse{Action: action, Book: book, Result: ResultActionCompleted}, a.stdout)
	}
	_, _ = fmt.Fprintln(a.stdout, msg)
	a.result(ResultActionCompleted)
	return nil
}
