package cmd

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"vodpick/internal/httputil"
	"vodpick/internal/media"
	"vodpick/internal/ui"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "Play a bookmarked title",
	Args:    cobra.NoArgs,
	RunE:    favoritesRun,
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <source> <id>",
	Short: "Bookmark a title by source and id",
	Args:  cobra.ExactArgs(2),
	RunE:  favoritesAddRun,
}

var favoritesRemoveCmd = &cobra.Command{
	Use:     "rm",
	Aliases: []string{"remove"},
	Short:   "Pick a bookmark to remove",
	Args:    cobra.NoArgs,
	RunE:    favoritesRemoveRun,
}

func init() {
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
}

func pickFavorite(e *engine, cmd *cobra.Command) (media.Favorite, error) {
	favs, err := e.store.Favorites(cmd.Context())
	if err != nil {
		return media.Favorite{}, err
	}
	if len(favs) == 0 {
		return media.Favorite{}, errors.New("no favorites yet, add one with: vodpick favorites add <source> <id>")
	}
	idx, err := ui.Select("Favorites", lo.Map(favs, func(f media.Favorite, _ int) string {
		return ui.FavoriteLine(f)
	}))
	if err != nil {
		return media.Favorite{}, err
	}
	return favs[idx], nil
}

func favoritesRun(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireStore(); err != nil {
		return err
	}

	if flagJSON {
		favs, err := e.store.Favorites(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(lo.Ternary(favs == nil, []media.Favorite{}, favs))
	}

	fav, err := pickFavorite(e, cmd)
	if err != nil {
		return err
	}
	ref := media.SourceRef{Source: fav.Source, ID: fav.ID}
	return resolveAndPlay(cmd.Context(), e, historyRequest(fav.Title, fav.SearchTitle, ref, mo.None[int]()), false)
}

func favoritesAddRun(cmd *cobra.Command, args []string) error {
	ref := media.SourceRef{Source: args[0], ID: args[1]}
	if err := httputil.ValidateSourceKey(ref.Source); err != nil {
		return err
	}
	if err := httputil.ValidateID(ref.ID); err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireStore(); err != nil {
		return err
	}

	c, err := e.catalog.Detail(cmd.Context(), ref)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", ref, err)
	}
	fav := media.Favorite{
		Source:        ref.Source,
		ID:            ref.ID,
		Title:         c.Title,
		Year:          c.Year,
		Poster:        c.Poster,
		TotalEpisodes: len(c.Episodes),
		SearchTitle:   c.Title,
	}
	if err := e.store.AddFavorite(cmd.Context(), fav); err != nil {
		return err
	}
	fmt.Println(ui.StatusText("Added " + ui.FavoriteLine(fav)))
	return nil
}

func favoritesRemoveRun(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireStore(); err != nil {
		return err
	}

	fav, err := pickFavorite(e, cmd)
	if err != nil {
		return err
	}
	if err := e.store.RemoveFavorite(cmd.Context(), media.SourceRef{Source: fav.Source, ID: fav.ID}); err != nil {
		return err
	}
	fmt.Printf("Removed %s from favorites.\n", fav.Title)
	return nil
}
