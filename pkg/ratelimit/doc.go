// Package ratelimit throttles link checks so a long result list does not
// hammer the media CDN.
//
//	limiter := ratelimit.PerMinute(cfg.Validation.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
