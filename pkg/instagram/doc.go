// Package instagram validates user input naming an Instagram target and turns
// it into a models.ScrapeRequest.
//
// Usernames follow Instagram's rules (1-30 characters, letters, digits, '.'
// and '_', no leading or trailing dot). Reel links must point at
// instagram.com and contain a reel or post path; a missing scheme defaults
// to https.
//
//	req, err := instagram.NewStoriesRequest("@natgeo")
//	if err != nil {
//	    // errors.IsType(err, errors.ErrorTypeValidation) is true
//	}
package instagram
