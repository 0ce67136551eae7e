package notify

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/helipad/internal/boost"
)

// FormatTitle creates the notification title for a received boost.
func FormatTitle(rec *boost.Record) string {
	sender := rec.Sender
	if sender == "" {
		sender = "Anonymous"
	}
	return fmt.Sprintf("Boost from %s: %d sats", sender, rec.ValueMsatTotal/1000)
}

// FormatMessage creates the notification body for a received boost.
func FormatMessage(rec *boost.Record) string {
	var sb strings.Builder

	if rec.Message != "" {
		sb.WriteString(rec.Message)
		sb.WriteString("\n\n")
	}

	podcast, episode := rec.Podcast, rec.Episode
	if rec.RemotePodcast != nil {
		podcast = *rec.RemotePodcast
	}
	if rec.RemoteEpisode != nil {
		episode = *rec.RemoteEpisode
	}

	if podcast != "" {
		sb.WriteString(fmt.Sprintf("Podcast: %s\n", podcast))
	}
	if episode != "" {
		sb.WriteString(fmt.Sprintf("Episode: %s\n", episode))
	}
	if rec.App != "" {
		sb.WriteString(fmt.Sprintf("App: %s\n", rec.App))
	}
	sb.WriteString(fmt.Sprintf("Received: %d sats (index %d)", rec.ValueMsat/1000, rec.Index))

	return sb.String()
}
