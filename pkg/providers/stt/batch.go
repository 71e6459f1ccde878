package stt

import (
	"context"
	"time"
)

// utteranceSilence is how long a buffered utterance waits for more audio
// before it is flushed to the underlying batch transcription call. It
// approximates streaming for providers whose API is request/response
// rather than a persistent socket.
const utteranceSilence = 700 * time.Millisecond

// streamViaBatching adapts a one-shot "upload audio, get text back" API
// into ports.STTPort's streaming shape: it buffers chunks pushed onto the
// returned channel and flushes to transcribe whenever the caller goes
// silent for utteranceSilence, or when ctx is canceled with audio still
// buffered. Every flush is reported as a final transcript — these
// providers have no notion of interim results.
func streamViaBatching(ctx context.Context, transcribe func(ctx context.Context, pcm []byte) (string, error), onTranscript func(transcript string, isFinal bool) error) chan<- []byte {
	audioIn := make(chan []byte, 32)

	go func() {
		var buf []byte
		timer := time.NewTimer(utteranceSilence)
		if !timer.Stop() {
			<-timer.C
		}
		armed := false

		flush := func() {
			if len(buf) == 0 {
				return
			}
			pcm := buf
			buf = nil
			armed = false
			text, err := transcribe(ctx, pcm)
			if err != nil || text == "" {
				return
			}
			onTranscript(text, true)
		}

		for {
			select {
			case <-ctx.Done():
				flush()
				return
			case chunk, ok := <-audioIn:
				if !ok {
					flush()
					return
				}
				buf = append(buf, chunk...)
				if !armed {
					armed = true
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(utteranceSilence)
			case <-timer.C:
				flush()
			}
		}
	}()

	return audioIn
}
