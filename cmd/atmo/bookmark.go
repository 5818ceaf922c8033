package main

import (
	"net/http"
	"sort"

	"github.com/mistifyio/atmosphere/internal/cli"
	"github.com/spf13/cobra"
)

func bookmarkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Manage your image bookmarks",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list [<id>...]",
			Short: "List bookmarks",
			Long:  `List your bookmarks, or the ones named. An id may be the bookmark id or the bookmarked application id.`,
			RunE: func(_ *cobra.Command, ids []string) error {
				return a.listBookmarks(cli.Args(ids, a.in))
			},
		},
		&cobra.Command{
			Use:   "create <application>...",
			Short: "Bookmark applications",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, ids []string) error {
				return a.createBookmarks(cli.Args(ids, a.in))
			},
		},
		&cobra.Command{
			Use:   "delete <id>...",
			Short: "Delete bookmarks",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, ids []string) error {
				return a.deleteBookmarks(cli.Args(ids, a.in))
			},
		},
	)
	return cmd
}

func (a *app) listBookmarks(ids []string) error {
	c := a.client()
	var bookmarks cli.JMapSlice

	if len(ids) == 0 {
		var err error
		if bookmarks, err = c.GetMany("bookmarks", "image_bookmarks"); err != nil {
			return err
		}
		sort.Sort(bookmarks)
	}
	for _, id := range ids {
		if err := cli.CheckID(id); err != nil {
			return err
		}
		bookmark, err := c.Get("bookmark", "image_bookmarks/"+id)
		if err != nil {
			return err
		}
		bookmarks = append(bookmarks, bookmark)
	}

	for _, bookmark := range bookmarks {
		a.print(bookmark)
	}
	return nil
}

func (a *app) createBookmarks(applications []string) error {
	c := a.client()
	for _, application := range applications {
		if err := cli.CheckID(application); err != nil {
			return err
		}
		bookmark, _, err := c.Post("bookmark", "image_bookmarks", cli.JMap{"application": application}, http.StatusCreated)
		if err != nil {
			return err
		}
		a.print(bookmark)
	}
	return nil
}

func (a *app) deleteBookmarks(ids []string) error {
	c := a.client()
	for _, id := range ids {
		if err := cli.CheckID(id); err != nil {
			return err
		}
		if _, _, err := c.Del("bookmark", "image_bookmarks/"+id, http.StatusNoContent); err != nil {
			return err
		}
		a.print(cli.JMap{"id": id})
	}
	return nil
}
