package main

import (
	"errors"
	"fmt"
	"strings"

	"shutter/internal/bootstrap"
	"shutter/internal/database"
	"shutter/internal/search"

	"github.com/spf13/cobra"
)

func newMigrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the primary and search schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(c *bootstrap.Components) error {
				if err := database.Migrate(c.DB); err != nil {
					return err
				}
				if err := search.Migrate(c.SearchDB); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schemas migrated")
				return nil
			})
		},
	}
}

func newReindexCmd(open opener) *cobra.Command {
	var posts, users, tags bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild search documents from the primary store",
		Long:  "Rebuild search documents. Without a type flag every document type is rebuilt.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope := reindexScope(posts, users, tags)
			return withRuntime(cmd, open, func(c *bootstrap.Components) error {
				stats, err := c.Reindexer.Reindex(cmd.Context(), scope)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reindexed posts=%d users=%d tags=%d pruned=%d failed=%d\n",
					stats.Posts, stats.Users, stats.Tags, stats.Pruned, stats.Failed)
				if stats.Failed > 0 {
					return fmt.Errorf("%d documents failed to index", stats.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&posts, "posts", false, "rebuild post documents")
	cmd.Flags().BoolVar(&users, "users", false, "rebuild user documents")
	cmd.Flags().BoolVar(&tags, "tags", false, "rebuild tag documents")
	return cmd
}

func reindexScope(posts, users, tags bool) search.Scope {
	var scope search.Scope
	if posts {
		scope |= search.ScopePosts
	}
	if users {
		scope |= search.ScopeUsers
	}
	if tags {
		scope |= search.ScopeTags
	}
	if scope == 0 {
		return search.ScopeAll
	}
	return scope
}

func newCacheCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and purge the tiered cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "purge <glob>",
		Short:   "Delete matching keys from every cache tier",
		Example: "  shutterctl cache purge 'public_posts_page_*'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := strings.TrimSpace(args[0])
			if pattern == "" {
				return errors.New("glob must not be empty")
			}
			return withRuntime(cmd, open, func(c *bootstrap.Components) error {
				c.Cache.DeleteByPattern(cmd.Context(), pattern)
				fmt.Fprintf(cmd.OutOrStdout(), "purged %q from %d tiers\n", pattern, len(c.Cache.Tiers()))
				return nil
			})
		},
	})
	return cmd
}
