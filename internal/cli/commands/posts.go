package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quill-dev/quill/internal/blog"
)

// NewPostsCmd creates the posts command
func NewPostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "posts",
		Short: "List your blog posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPosts(cmd.Context(), globalOptions(cmd)...)
		},
	}
}

func runPosts(ctx context.Context, opts ...Option) error {
	e := newEnv(opts...)

	m, err := e.session()
	if err != nil {
		return err
	}
	if err := requireToken(m); err != nil {
		return err
	}

	posts, err := blog.NewService(m, e.querier).ListPosts(ctx)
	if err != nil {
		return expired(err)
	}

	if len(posts) == 0 {
		fmt.Fprintln(e.out, "No posts found.")
		return nil
	}

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tSTATUS\tTAGS\tCREATED AT")
	fmt.Fprintln(w, "─────\t──────\t────\t──────────")

	for _, post := range posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			post.Title,
			strings.ToLower(post.Status),
			strings.Join(post.Tags, ", "),
			post.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}

	return w.Flush()
}
