package letterboxd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/boxdarr/boxdarr/internal/utils"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// filmCandidate is one entry scraped from a search results page
type filmCandidate struct {
	FilmID string
	Name   string
	Year   int
}

// resolveFilmID locates the Letterboxd film id for a movie. A TMDb id gives a
// direct lookup; otherwise the catalog search is matched against the title by
// the selection policy: exact normalized title+year wins, then best fuzzy
// match above the threshold. No match above threshold is a hard failure —
// never guess and log against the wrong work.
func (c *Client) resolveFilmID(ctx context.Context, title string, year int, tmdbID string) (string, error) {
	cacheKey := fmt.Sprintf("%s|%d|%s", title, year, tmdbID)
	if cached, ok := c.filmIDs.Get(cacheKey); ok {
		return cached.(string), nil
	}

	if tmdbID != "" {
		if filmID, err := c.lookupByTMDB(ctx, tmdbID); err == nil {
			c.filmIDs.Set(cacheKey, filmID, gocache.DefaultExpiration)
			return filmID, nil
		} else {
			c.logger.WithError(err).WithField("tmdb_id", tmdbID).
				Warn("TMDb lookup failed, falling back to catalog search")
		}
	}

	filmID, err := c.searchCatalog(ctx, title, year)
	if err != nil {
		return "", err
	}

	c.filmIDs.Set(cacheKey, filmID, gocache.DefaultExpiration)
	return filmID, nil
}

// lookupByTMDB resolves a film through the /tmdb/{id} redirect page
func (c *Client) lookupByTMDB(ctx context.Context, tmdbID string) (string, error) {
	doc, err := c.getDocument(ctx, "/tmdb/"+url.PathEscape(tmdbID))
	if err != nil {
		return "", err
	}
	if loggedOut(doc) {
		return "", errSessionExpired
	}

	filmID, ok := doc.Find("[data-film-id]").First().Attr("data-film-id")
	if !ok || filmID == "" {
		return "", fmt.Errorf("no film id at tmdb/%s", tmdbID)
	}

	c.logger.WithFields(logrus.Fields{
		"tmdb_id": tmdbID,
		"film_id": filmID,
	}).Debug("Film resolved via TMDb id")
	return filmID, nil
}

// searchCatalog searches the film catalog and applies the match policy
func (c *Client) searchCatalog(ctx context.Context, title string, year int) (string, error) {
	query := title
	if year > 0 {
		query = fmt.Sprintf("%s %d", title, year)
	}
	path := "/search/films/" + url.PathEscape(query) + "/"

	c.logger.WithFields(logrus.Fields{
		"title": title,
		"year":  year,
	}).Debug("Searching Letterboxd catalog")

	doc, err := c.getDocument(ctx, path)
	if err != nil {
		return "", err
	}
	if loggedOut(doc) {
		return "", errSessionExpired
	}

	candidates := parseCandidates(doc)
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no results for %q (%d)", ErrMovieNotFound, title, year)
	}

	return c.pickCandidate(candidates, title, year)
}

// parseCandidates extracts film entries from a search results page
func parseCandidates(doc *goquery.Document) []filmCandidate {
	var candidates []filmCandidate
	seen := make(map[string]bool)

	doc.Find("[data-film-id]").Each(func(_ int, sel *goquery.Selection) {
		filmID, _ := sel.Attr("data-film-id")
		if filmID == "" || seen[filmID] {
			return
		}
		seen[filmID] = true

		candidate := filmCandidate{FilmID: filmID}

		if name, ok := sel.Attr("data-film-name"); ok {
			candidate.Name = name
		} else if alt, ok := sel.Find("img").First().Attr("alt"); ok {
			candidate.Name = alt
		}

		if yearStr, ok := sel.Attr("data-film-release-year"); ok {
			if y, err := strconv.Atoi(strings.TrimSpace(yearStr)); err == nil {
				candidate.Year = y
			}
		}

		candidates = append(candidates, candidate)
	})

	return candidates
}

// pickCandidate applies the selection policy over parsed candidates
func (c *Client) pickCandidate(candidates []filmCandidate, title string, year int) (string, error) {
	// Exact normalized title with agreeing year wins outright
	wanted := utils.NormalizeTitle(title)
	for _, cand := range candidates {
		if utils.NormalizeTitle(cand.Name) == wanted && yearAgrees(cand.Year, year) {
			c.logger.WithFields(logrus.Fields{
				"film_id": cand.FilmID,
				"name":    cand.Name,
			}).Debug("Exact catalog match")
			return cand.FilmID, nil
		}
	}

	// Otherwise best similarity above the threshold
	var best, runnerUp filmCandidate
	var bestScore, runnerUpScore float64
	for _, cand := range candidates {
		if !yearAgrees(cand.Year, year) {
			continue
		}
		score := utils.TitleSimilarity(cand.Name, title)
		if score > bestScore {
			runnerUp, runnerUpScore = best, bestScore
			best, bestScore = cand, score
		} else if score > runnerUpScore {
			runnerUp, runnerUpScore = cand, score
		}
	}

	if bestScore < c.matchThreshold {
		return "", fmt.Errorf("%w: best score %.2f below threshold %.2f for %q (%d)",
			ErrMovieNotFound, bestScore, c.matchThreshold, title, year)
	}
	if runnerUp.FilmID != "" && runnerUpScore == bestScore && runnerUp.FilmID != best.FilmID {
		return "", fmt.Errorf("%w: %q and %q both score %.2f for %q",
			ErrAmbiguousMatch, best.Name, runnerUp.Name, bestScore, title)
	}

	c.logger.WithFields(logrus.Fields{
		"film_id": best.FilmID,
		"name":    best.Name,
		"score":   bestScore,
	}).Debug("Fuzzy catalog match")
	return best.FilmID, nil
}

// yearAgrees tolerates one year of drift between metadata sources; an unset
// year on either side never disqualifies a candidate
func yearAgrees(candidateYear, wantedYear int) bool {
	if candidateYear == 0 || wantedYear == 0 {
		return true
	}
	diff := candidateYear - wantedYear
	return diff >= -1 && diff <= 1
}
