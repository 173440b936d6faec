package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"draftforge/internal/pipeline"
	"draftforge/internal/store"
)

// ArticleOptions holds flags for the article subcommands.
type ArticleOptions struct {
	*RootOptions
	States []string
	Limit  int
}

// NewArticleCommand creates the article command group.
func NewArticleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArticleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "article",
		Short: "Inspect articles in the pipeline",
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List articles",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listArticles(opts, cmd)
		},
	}
	list.Flags().StringSliceVar(&opts.States, "state", nil, "filter by state (repeatable)")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows to return")

	show := &cobra.Command{
		Use:           "show <article-id>",
		Short:         "Show one article with its payloads",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showArticle(opts, args[0], cmd)
		},
	}

	events := &cobra.Command{
		Use:           "events <article-id>",
		Short:         "Show an article's event history",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listArticleEvents(opts, args[0], cmd)
		},
	}

	export := &cobra.Command{
		Use:   "export <article-id>",
		Short: "Print the formatted export of a finished article",
		Long: `Print the publishable export (front matter plus body) of an
article that has reached the formatting stage. Fails with exit code 1
when the article has no export yet.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportArticle(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list, show, events, export)
	return cmd
}

func listArticles(opts *ArticleOptions, cmd *cobra.Command) error {
	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	var filter store.Filter
	for _, raw := range opts.States {
		s, err := pipeline.ParseState(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --state", err)
		}
		filter.States = append(filter.States, s)
	}
	filter.Limit = uint64(opts.Limit)

	articles, err := st.ListArticles(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list articles", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(articles, func(w io.Writer) {
		if len(articles) == 0 {
			fmt.Fprintln(w, "No articles.")
			return
		}
		for _, a := range articles {
			line := fmt.Sprintf("%s  %-20s  %s", a.ID, a.State, a.Title)
			if a.LastError != "" {
				line += fmt.Sprintf("  (last error: %s)", a.LastError)
			}
			fmt.Fprintln(w, line)
		}
	})
}

func showArticle(opts *ArticleOptions, id string, cmd *cobra.Command) error {
	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	article, err := getArticle(opts, st, id, cmd)
	if err != nil {
		return err
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(article, func(w io.Writer) {
		fmt.Fprintf(w, "Article:    %s\n", article.ID)
		fmt.Fprintf(w, "Title:      %s\n", article.Title)
		fmt.Fprintf(w, "State:      %s\n", article.State)
		fmt.Fprintf(w, "Retries:    %d\n", article.RetryCount)
		if article.LastError != "" {
			fmt.Fprintf(w, "Last error: %s\n", article.LastError)
		}
		if article.Claimed() {
			fmt.Fprintf(w, "Claimed:    %s at %s\n", article.ClaimedBy, article.ClaimedAt.Format("2006-01-02 15:04:05"))
		}
		if article.PublishedAt != nil {
			fmt.Fprintf(w, "Published:  %s\n", article.PublishedAt.Format("2006-01-02 15:04:05"))
		}
		if preview := contentPreview(article); preview != "" {
			fmt.Fprintf(w, "\n%s\n", preview)
		}
	})
}

func listArticleEvents(opts *ArticleOptions, id string, cmd *cobra.Command) error {
	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := getArticle(opts, st, id, cmd); err != nil {
		return err
	}
	evs, err := st.ListEvents(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list events", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(evs, func(w io.Writer) {
		for _, ev := range evs {
			fmt.Fprintf(w, "%s  %-13s  %v\n", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Type, ev.Data)
		}
	})
}

func exportArticle(opts *ArticleOptions, id string, cmd *cobra.Command) error {
	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	article, err := getArticle(opts, st, id, cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(article.WordPressContent) == "" {
		return NewExitError(ExitFailure, fmt.Sprintf("article %s has no export yet (state %s)", id, article.State))
	}

	fmt.Fprint(cmd.OutOrStdout(), article.WordPressContent)
	return nil
}

func getArticle(opts *ArticleOptions, st *store.Store, id string, cmd *cobra.Command) (pipeline.Article, error) {
	article, err := st.GetArticle(cmd.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pipeline.Article{}, WrapExitError(ExitCommandError, fmt.Sprintf("article %s not found", id), err)
		}
		return pipeline.Article{}, WrapExitError(ExitCommandError, "failed to load article", err)
	}
	return article, nil
}

// contentPreview returns the first lines of the richest content the
// article has so far.
func contentPreview(a pipeline.Article) string {
	var content string
	for _, c := range []string{a.WordPressContent, a.LinkedContent, a.FinalContent, a.RevisedDraft, a.Draft} {
		if strings.TrimSpace(c) != "" {
			content = c
			break
		}
	}
	if content == "" {
		return ""
	}
	lines := strings.SplitN(content, "\n", 9)
	if len(lines) == 9 {
		return strings.Join(lines[:8], "\n") + "\n..."
	}
	return content
}
