package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/pkg/types"
)

const (
	speechQueue   = 16
	speechTimeout = 15 * time.Second
	speechRetry   = 500 * time.Millisecond
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type announcement struct {
	at   float64
	kind string // "entered" | "exited"
	text string
}

// Speech announces collapse transitions. Write only detects transitions and
// queues them; Run performs synthesis.
type Speech struct {
	cfg config.SpeechOutputConfig

	mu        sync.Mutex
	client    synthClient
	collapsed bool

	queue chan announcement
}

// NewSpeech builds a Speech sink. client may be nil, in which case a Polly
// client is created from the default AWS config on first use.
func NewSpeech(cfg config.SpeechOutputConfig, client synthClient) *Speech {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	return &Speech{cfg: cfg, client: client, queue: make(chan announcement, speechQueue)}
}

// Write implements engine.Output.
func (s *Speech) Write(_ context.Context, st types.TemporalState) error {
	s.mu.Lock()
	prev := s.collapsed
	s.collapsed = st.Collapsed
	s.mu.Unlock()

	var a announcement
	switch {
	case st.Collapsed && !prev:
		a = announcement{at: st.Timestamp, kind: "entered",
			text: fmt.Sprintf("Coherence collapse. Coherence is %.0f percent.", st.Coherence*100)}
	case !st.Collapsed && prev:
		a = announcement{at: st.Timestamp, kind: "exited",
			text: fmt.Sprintf("Collapse released. Coherence is %.0f percent.", st.Coherence*100)}
	default:
		return nil
	}

	select {
	case s.queue <- a:
		return nil
	default:
		return errors.New("sink: speech queue full, announcement dropped")
	}
}

// Run synthesizes queued announcements until ctx is cancelled.
func (s *Speech) Run(ctx context.Context) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		slog.Error("sink: speech output dir unavailable", "dir", s.cfg.Dir, "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-s.queue:
			path, err := s.announce(ctx, a)
			if err != nil {
				slog.Warn("sink: speech synthesis failed", "kind", a.kind, "err", err)
				continue
			}
			slog.Info("sink: collapse announced", "kind", a.kind, "file", path)
		}
	}
}

// announce synthesizes one announcement, retrying once on a throttle or
// server error.
func (s *Speech) announce(ctx context.Context, a announcement) (string, error) {
	client, err := s.resolveClient(ctx)
	if err != nil {
		return "", err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	in := &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &a.text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(s.cfg.VoiceID),
	}

	var out *polly.SynthesizeSpeechOutput
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, speechTimeout)
		out, err = client.SynthesizeSpeech(callCtx, in)
		cancel()
		if err == nil || !retryable(err) || attempt == 1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(speechRetry):
		}
	}
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	if out == nil || out.AudioStream == nil {
		return "", errors.New("synthesize: empty audio stream")
	}
	defer out.AudioStream.Close()

	path := filepath.Join(s.cfg.Dir, fmt.Sprintf("collapse-%s-%d.mp3", a.kind, types.Time(a.at).UnixMilli()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create clip: %w", err)
	}
	if _, err := io.Copy(f, out.AudioStream); err != nil {
		f.Close()
		return "", fmt.Errorf("write clip: %w", err)
	}
	return path, f.Close()
}

// retryable reports whether err is worth one more attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return false
		}
		return true
	}
	return true
}

func (s *Speech) resolveClient(ctx context.Context) (synthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s.client = polly.NewFromConfig(awsCfg)
	return s.client, nil
}
