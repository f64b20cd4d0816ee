package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/storage"
)

const (
	encodedBitrate     = 128_000 // bits per second assumed for compressed audio
	minPlaybackLength  = 500 * time.Millisecond
	pcmBytesPerSample  = 2
	defaultPCMSampleHz = 24_000
)

// MediaPlayer stores the audio, announces it to clients over the event
// stream and waits out its playing time.
type MediaPlayer struct {
	media     storage.Storage
	publisher events.Publisher
	// Wait blocks for d or until ctx is done. Tests replace it.
	Wait func(ctx context.Context, d time.Duration) error
}

var _ Player = (*MediaPlayer)(nil)

// NewMediaPlayer creates a MediaPlayer.
func NewMediaPlayer(media storage.Storage, publisher events.Publisher) *MediaPlayer {
	return &MediaPlayer{
		media:     media,
		publisher: publisher,
		Wait:      sleep,
	}
}

// Play implements Player.
func (p *MediaPlayer) Play(ctx context.Context, sessionID uuid.UUID, messageID int, voiceID string, audio *llm.Audio) error {
	if audio == nil || len(audio.Data) == 0 {
		return fmt.Errorf("no audio to play")
	}
	mediaID, err := p.media.SaveMedia(ctx, sessionID, audio.MIMEType, audio.Data)
	if err != nil {
		return fmt.Errorf("failed to store audio: %w", err)
	}
	if err := p.publisher.Publish(ctx, sessionID, events.SpeechStarted(messageID, voiceID, storage.MediaURL(sessionID, mediaID))); err != nil {
		return fmt.Errorf("failed to announce audio: %w", err)
	}
	return p.Wait(ctx, Duration(audio))
}

// Duration estimates how long audio takes to play.
func Duration(audio *llm.Audio) time.Duration {
	if audio == nil {
		return 0
	}
	var d time.Duration
	if audio.SampleRate > 0 || audio.MIMEType == "audio/pcm" || audio.MIMEType == "audio/L16" {
		rate := audio.SampleRate
		if rate == 0 {
			rate = defaultPCMSampleHz
		}
		d = time.Duration(len(audio.Data)) * time.Second / time.Duration(rate*pcmBytesPerSample)
	} else {
		d = time.Duration(len(audio.Data)) * 8 * time.Second / encodedBitrate
	}
	if d < minPlaybackLength {
		d = minPlaybackLength
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
