package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"vodpick/internal/download"
	"vodpick/internal/httputil"
	"vodpick/internal/media"
	"vodpick/internal/player"
	"vodpick/internal/resolve"
	"vodpick/internal/store"
	"vodpick/internal/ui"
)

// playOptions are the root command's resolution flags.
type playOptions struct {
	year        string
	mediaType   string
	searchTitle string
	source      string
	id          string
	best        bool
	episode     int // 1-based, 0 when unset
	pick        bool
	resume      bool
}

var playOpts playOptions

func addPlayFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&playOpts.year, "year", "", "Release year to match")
	f.StringVar(&playOpts.mediaType, "type", "", "Content type: movie | tv")
	f.StringVar(&playOpts.searchTitle, "search-title", "", "Title to search for when it differs from the display title")
	f.StringVar(&playOpts.source, "source", "", "Prefer this source key (use with --id)")
	f.StringVar(&playOpts.id, "id", "", "Provider id of the preferred source")
	f.BoolVar(&playOpts.best, "best", false, "Test every source even when the preferred one is found")
	f.IntVarP(&playOpts.episode, "episode", "e", 0, "Episode number to start with")
	f.BoolVar(&playOpts.pick, "pick", false, "Choose the source yourself once testing finishes")
	f.BoolVarP(&playOpts.resume, "continue", "c", false, "Resume the source and episode last watched for this title")
}

// request builds the resolution request for title from the flags.
func (o playOptions) request(title string) (resolve.Request, error) {
	req := resolve.Request{
		Query: media.Query{
			Title:       strings.TrimSpace(title),
			Year:        strings.TrimSpace(o.year),
			SearchTitle: strings.TrimSpace(o.searchTitle),
		},
		PreferBest: o.best,
	}

	if o.mediaType != "" {
		t, ok := media.ParseMediaType(o.mediaType)
		if !ok {
			return req, fmt.Errorf("unknown --type %q (valid: movie, tv)", o.mediaType)
		}
		req.Query.Type = mo.Some(t)
	}

	if o.source != "" || o.id != "" {
		if o.source == "" || o.id == "" {
			return req, errors.New("--source and --id must be given together")
		}
		if err := httputil.ValidateSourceKey(o.source); err != nil {
			return req, fmt.Errorf("--source: %w", err)
		}
		if err := httputil.ValidateID(o.id); err != nil {
			return req, fmt.Errorf("--id: %w", err)
		}
		req.Hint = mo.Some(media.SourceRef{Source: o.source, ID: o.id})
	}

	switch {
	case o.episode < 0:
		return req, fmt.Errorf("--episode must be positive, got %d", o.episode)
	case o.episode > 0:
		req.Episode = mo.Some(o.episode - 1)
	}
	return req, nil
}

// playRun is the default command: vodpick <title>
func playRun(cmd *cobra.Command, args []string) error {
	title := strings.Join(args, " ")
	if title == "" && playOpts.source == "" {
		if !ui.IsTerminal() {
			return errors.New("no title given")
		}
		var err error
		title, err = ui.Input("Title")
		if err != nil {
			return err
		}
	}

	req, err := playOpts.request(title)
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if playOpts.resume && req.Hint.IsAbsent() && e.store != nil {
		req = resumeFromHistory(ctx, e.store, req)
	}
	return resolveAndPlay(ctx, e, req, playOpts.pick)
}

// resumeFromHistory points req at the most recent play record of the same
// title, keeping an explicitly requested episode.
func resumeFromHistory(ctx context.Context, st *store.Store, req resolve.Request) resolve.Request {
	records, err := st.RecentPlays(ctx, store.DefaultRecentLimit)
	if err != nil {
		log.Warn().Err(err).Msg("reading history")
		return req
	}
	want := media.NormalizeTitle(req.Query.LookupTitle())
	rec, ok := lo.Find(records, func(r media.PlayRecord) bool {
		return media.NormalizeTitle(r.Title) == want || media.NormalizeTitle(r.SearchTitle) == want
	})
	if !ok {
		log.Info().Str("title", req.Query.LookupTitle()).Msg("no history for title, resolving normally")
		return req
	}

	log.Debug().Str("ref", rec.Source+"/"+rec.ID).Int("episode", rec.Episode+1).Msg("resuming from history")
	req.Hint = mo.Some(media.SourceRef{Source: rec.Source, ID: rec.ID})
	if req.Episode.IsAbsent() {
		req.Episode = mo.Some(rec.Episode)
	}
	return req
}

// resolveAndPlay resolves req and then plays, prints or downloads the
// committed target. TV items continue with the next episode on request.
func resolveAndPlay(ctx context.Context, e *engine, req resolve.Request, pick bool) error {
	interactive := ui.IsTerminal() && !flagJSON

	events, unsubscribe := e.orch.Subscribe()
	defer unsubscribe()

	if _, err := e.orch.Resolve(req); err != nil {
		return err
	}

	label := req.Query.LookupTitle()
	if label == "" {
		label = req.Hint.OrEmpty().String()
	}
	if err := waitForTarget(ctx, e, events, label, interactive); err != nil {
		return err
	}
	if _, err := e.orch.Await(ctx); err != nil {
		return err
	}
	unsubscribe()

	if pick && interactive {
		if _, err := pickSource(e.orch); err != nil && !errors.Is(err, ui.ErrCancelled) {
			return err
		}
	}

	for {
		cand, target, ok := e.orch.Current()
		if !ok {
			return resolve.ErrNoTarget
		}
		if target.Episode >= len(cand.Episodes) {
			return fmt.Errorf("%s has no episode %d", target.Ref(), target.Episode+1)
		}
		stream := media.Stream{URL: cand.Episodes[target.Episode]}

		switch {
		case flagJSON:
			return printStream(e.orch, cand, target, stream)
		case flagDownload != "":
			return downloadEpisode(ctx, cand, target, stream)
		}

		next, err := playEpisode(ctx, e, cand, target, stream, interactive)
		if err != nil || !next {
			return err
		}
		if _, err := e.orch.AdvanceEpisode(1); err != nil {
			return err
		}
	}
}

// waitForTarget shows progress until the session settles. When the wait
// ceiling passes the user may pick a source instead of waiting longer.
func waitForTarget(ctx context.Context, e *engine, events <-chan resolve.Event, label string, interactive bool) error {
	var outcome ui.WaitOutcome
	if interactive {
		var err error
		outcome, err = ui.WaitWithProgress(label, events, cfg.WaitCeiling, e.orch.Status)
		if err != nil {
			return err
		}
	} else {
		outcome = ui.WaitWithLog(ctx, events, cfg.WaitCeiling, e.orch.Status, log.Logger)
	}

	switch outcome {
	case ui.WaitCancelled:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ui.ErrCancelled
	case ui.WaitTimedOut:
		if !interactive {
			return nil
		}
		now, err := ui.Confirm("Still testing sources. Pick one now?")
		if err != nil && !errors.Is(err, ui.ErrCancelled) {
			return err
		}
		if now {
			_, err := pickSource(e.orch)
			if err == nil {
				return nil
			}
			if !errors.Is(err, ui.ErrCancelled) {
				log.Warn().Err(err).Msg("picking source")
			}
		}
		fmt.Fprintln(os.Stderr, ui.MutedText("Waiting for source tests to finish..."))
	}
	return nil
}

// pickSource lets the user choose among the discovered candidates.
func pickSource(orch *resolve.Orchestrator) (media.PlaybackTarget, error) {
	snap := orch.Snapshot()
	if len(snap.Candidates) == 0 {
		return media.PlaybackTarget{}, errors.New("no sources discovered yet")
	}
	items := lo.Map(snap.Candidates, func(v resolve.CandidateView, _ int) string {
		return ui.CandidateLine(v)
	})
	idx, err := ui.Select("Source", items)
	if err != nil {
		return media.PlaybackTarget{}, err
	}
	return orch.SwitchSource(snap.Candidates[idx].Ref())
}

func episodeTitle(c media.Candidate, t media.PlaybackTarget) string {
	if len(c.Episodes) > 1 {
		return fmt.Sprintf("%s E%02d", c.Title, t.Episode+1)
	}
	return c.Title
}

// playEpisode plays one episode and reports whether to continue with the
// next one.
func playEpisode(ctx context.Context, e *engine, c media.Candidate, t media.PlaybackTarget, stream media.Stream, interactive bool) (bool, error) {
	p := player.New(cfg.Player, log.WithComponent("player").Logger)
	if !p.Available() {
		return false, fmt.Errorf("player %q not found in PATH", cfg.Player)
	}

	var skip media.SkipConfig
	if e.store != nil {
		var err error
		skip, err = e.store.SkipConfig(ctx, t.Ref())
		if err != nil {
			log.Warn().Err(err).Msg("reading skip config")
		}
	}

	title := episodeTitle(c, t)
	fmt.Fprintln(os.Stderr, ui.StatusText(fmt.Sprintf("Playing %s from %s", title, lo.CoalesceOrEmpty(c.SourceName, c.Source))))

	res, err := p.Play(ctx, stream, player.Options{
		Title: title,
		Start: t.ResumeSeconds.OrEmpty(),
		Skip:  skip,
	})
	if err != nil {
		return false, fmt.Errorf("playback failed: %w", err)
	}
	e.orch.ReportPosition(res.Position)
	log.Debug().Str("position", player.FormatDuration(res.Position)).Msg("playback stopped")

	if !interactive || !res.Completed(skip) || t.Episode+1 >= len(c.Episodes) {
		return false, nil
	}
	next, err := ui.Confirm(fmt.Sprintf("Play episode %d?", t.Episode+2))
	if errors.Is(err, ui.ErrCancelled) {
		return false, nil
	}
	return next, err
}

// streamOutput is the --json shape of a resolved stream.
type streamOutput struct {
	Title         string                  `json:"title"`
	Year          string                  `json:"year"`
	Source        string                  `json:"source"`
	SourceName    string                  `json:"sourceName"`
	ID            string                  `json:"id"`
	Episode       int                     `json:"episode"`
	TotalEpisodes int                     `json:"totalEpisodes"`
	URL           string                  `json:"url"`
	ResumeSeconds *float64                `json:"resumeSeconds,omitempty"`
	Candidates    []resolve.CandidateView `json:"candidates"`
}

func printStream(orch *resolve.Orchestrator, c media.Candidate, t media.PlaybackTarget, stream media.Stream) error {
	out := streamOutput{
		Title:         c.Title,
		Year:          c.Year,
		Source:        c.Source,
		SourceName:    c.SourceName,
		ID:            c.ID,
		Episode:       t.Episode + 1,
		TotalEpisodes: len(c.Episodes),
		URL:           stream.URL,
		Candidates:    orch.Snapshot().Candidates,
	}
	if secs, ok := t.ResumeSeconds.Get(); ok {
		out.ResumeSeconds = &secs
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func downloadEpisode(ctx context.Context, c media.Candidate, t media.PlaybackTarget, stream media.Stream) error {
	dir := flagDownload
	if dir == "default" {
		var err error
		dir, err = cfg.ExpandDownloadDir()
		if err != nil {
			return fmt.Errorf("resolving download dir: %w", err)
		}
	}
	name := download.Filename(c.Title, c.Year, t.Episode, len(c.Episodes))
	path, err := download.Download(ctx, stream, name, dir, log.WithComponent("download").Logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, ui.StatusText("Downloaded: "+path))
	return nil
}
