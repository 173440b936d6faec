package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"draftforge/internal/pipeline"
	"draftforge/internal/store"
)

// TopicOptions holds flags for the topic subcommands.
type TopicOptions struct {
	*RootOptions
	Keyword      string
	ApprovedOnly bool
	PendingOnly  bool
}

// NewTopicCommand creates the topic command group.
func NewTopicCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TopicOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage article topics",
	}

	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a topic to the backlog",
		Long: `Add a topic to the backlog. Topics do not enter the pipeline
until approved.

Example:
  draftforge topic add "Best practices for database indexing" --keyword "database indexing"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return addTopic(opts, args[0], cmd)
		},
	}
	add.Flags().StringVar(&opts.Keyword, "keyword", "", "focus keyword for the topic")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List topics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTopics(opts, cmd)
		},
	}
	list.Flags().BoolVar(&opts.ApprovedOnly, "approved", false, "only approved topics")
	list.Flags().BoolVar(&opts.PendingOnly, "pending", false, "only unapproved topics")

	approve := &cobra.Command{
		Use:   "approve <topic-id>",
		Short: "Approve a topic and enqueue its article",
		Long: `Approve a topic: creates the linked article and places it at the
start of the pipeline. Approving an already approved topic is a no-op
and reports the existing article.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return approveTopic(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(add, list, approve)
	return cmd
}

func addTopic(opts *TopicOptions, title string, cmd *cobra.Command) error {
	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	topic, err := st.CreateTopic(cmd.Context(), title, opts.Keyword)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create topic", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(topic, func(w io.Writer) {
		fmt.Fprintf(w, "Created topic %s: %s\n", topic.ID, topic.Title)
	})
}

func listTopics(opts *TopicOptions, cmd *cobra.Command) error {
	if opts.ApprovedOnly && opts.PendingOnly {
		return NewExitError(ExitCommandError, "--approved and --pending are mutually exclusive")
	}

	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	var approved *bool
	if opts.ApprovedOnly {
		t := true
		approved = &t
	}
	if opts.PendingOnly {
		f := false
		approved = &f
	}

	topics, err := st.ListTopics(cmd.Context(), approved)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list topics", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(topics, func(w io.Writer) {
		if len(topics) == 0 {
			fmt.Fprintln(w, "No topics.")
			return
		}
		for _, t := range topics {
			mark := " "
			if t.Approved {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %s  %s\n", mark, t.ID, t.Title)
		}
	})
}

func approveTopic(opts *TopicOptions, topicID string, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	startState, err := cfg.StartState()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	article, err := st.ApproveTopic(cmd.Context(), topicID, startState)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("topic %s not found", topicID), err)
		}
		return WrapExitError(ExitCommandError, "failed to approve topic", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(article, func(w io.Writer) {
		fmt.Fprintf(w, "Approved. Article %s is %s.\n", article.ID, describeState(article.State))
	})
}

func describeState(s pipeline.State) string {
	if s == pipeline.StatePending {
		return "queued"
	}
	return string(s)
}
