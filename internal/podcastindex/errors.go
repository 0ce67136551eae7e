package podcastindex

import "errors"

var (
	ErrNotFound          = errors.New("episode not found in directory")
	ErrMalformedResponse = errors.New("directory response missing required fields")
	ErrRateLimited       = errors.New("rate limited by directory API")
	ErrAuthFailed        = errors.New("directory authentication failed")
)
