// Package scraper extracts Instagram story and reel media links through a
// third-party download front end.
//
// A run drives a browser session through the site's fixed interaction
// protocol (open, consent, submit target, stories tab, "see more"
// pagination, collect result anchors), then validates every discovered
// link with a HEAD request. In persist mode valid media not yet present in
// the download ledger is fetched and written under the output directory.
//
// Usage:
//
//	s, err := scraper.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	links, err := s.ExtractStories(ctx, "natgeo")
//
// Every run, successful or not, is recorded in the session aggregator
// returned by Aggregator.
package scraper
